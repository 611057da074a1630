package ports

import (
	"context"
	"time"

	"github.com/0x-Crisbanks/Friendsly-sub000/core"
)

// Store persists nonces, users, notifications and token revocations.
type Store interface {
	// SaveNonce stores a login nonce keyed by wallet address. Issuing a new
	// nonce for the same address replaces the previous one.
	SaveNonce(ctx context.Context, nonce *core.Nonce, ttl time.Duration) error

	// ConsumeNonce atomically fetches and deletes the nonce for an address
	// so each issuance can be used at most once. Returns core.ErrInvalidNonce
	// when no live nonce exists.
	ConsumeNonce(ctx context.Context, address string) (*core.Nonce, error)

	// SaveUser upserts a user record.
	SaveUser(ctx context.Context, user *core.User) error

	// GetUser fetches a user by ID. Returns core.ErrUserNotFound when absent.
	GetUser(ctx context.Context, id string) (*core.User, error)

	// GetUserByAddress fetches a user by checksummed wallet address.
	GetUserByAddress(ctx context.Context, address string) (*core.User, error)

	// InvalidateToken marks an access token ID as revoked until its expiry.
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error

	// IsTokenInvalidated checks if a token ID is revoked.
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)

	// AddNotification appends a notification for a user.
	AddNotification(ctx context.Context, n *core.Notification) error

	// Notifications lists a user's notifications, newest first.
	Notifications(ctx context.Context, userID string) ([]*core.Notification, error)

	// MarkNotificationRead marks one notification read. Returns
	// core.ErrNotFound when the ID does not belong to the user.
	MarkNotificationRead(ctx context.Context, userID, id string) error

	// MarkAllNotificationsRead marks every notification of a user read.
	MarkAllNotificationsRead(ctx context.Context, userID string) error

	// DeleteNotification removes one notification.
	DeleteNotification(ctx context.Context, userID, id string) error
}
