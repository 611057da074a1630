package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0x-Crisbanks/Friendsly-sub000/adapters/events"
	"github.com/0x-Crisbanks/Friendsly-sub000/adapters/store"
	"github.com/0x-Crisbanks/Friendsly-sub000/adapters/tokenizer"
	"github.com/0x-Crisbanks/Friendsly-sub000/service"
	"github.com/0x-Crisbanks/Friendsly-sub000/transport/http"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	signKey, err := loadSignKey(os.Getenv("JWT_SIGN_KEY_PEM"))
	if err != nil {
		logger.Fatal("Failed to load signing key", zap.Error(err))
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}

	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		logger.Fatal("Failed to create Redis publisher", zap.Error(err))
	}

	authService := service.NewAuthService(
		store.NewRedisStore(redisClient),
		tokenizer.NewJWTTokenizer(signKey),
		events.NewWatermillPublisher(publisher),
		logger,
	)

	router := http.SetupRouter(authService)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":9000"
	}

	logger.Info("Starting auth service", zap.String("addr", listenAddr))
	if err := router.Run(listenAddr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

// loadSignKey parses an ES256 key from PEM, or generates an ephemeral one
// when unset. Ephemeral keys invalidate all tokens on restart, which is fine
// for development only.
func loadSignKey(pemData string) (*ecdsa.PrivateKey, error) {
	if pemData == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, os.ErrInvalid
	}

	return x509.ParseECPrivateKey(block.Bytes)
}
