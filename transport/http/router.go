package http

import (
	"github.com/gin-gonic/gin"

	"github.com/0x-Crisbanks/Friendsly-sub000/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService)

	// Wallet auth routes
	auth := router.Group("/auth/web3")
	{
		auth.POST("/nonce", handlers.Nonce)
		auth.POST("/login", handlers.Login)
	}
	router.POST("/auth/logout", handlers.Logout)

	// Protected routes
	protected := router.Group("/")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/users/:id", handlers.GetUser)
		protected.PUT("/users/:id", handlers.UpdateUser)
		protected.PATCH("/users/:id", handlers.UpdateUser)

		protected.GET("/notifications", handlers.Notifications)
		protected.POST("/notifications/:id/read", handlers.MarkNotificationRead)
		protected.POST("/notifications/read-all", handlers.MarkAllNotificationsRead)
		protected.DELETE("/notifications/:id", handlers.DeleteNotification)
	}

	return router
}
