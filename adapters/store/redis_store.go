package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0x-Crisbanks/Friendsly-sub000/core"
	"github.com/0x-Crisbanks/Friendsly-sub000/ports"
)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) ports.Store {
	return &RedisStore{
		client: client,
		prefix: "friendsly:",
	}
}

func (s *RedisStore) nonceKey(address string) string { return s.prefix + "nonce:" + address }
func (s *RedisStore) userKey(id string) string { return s.prefix + "user:" + id }
func (s *RedisStore) addrKey(address string) string { return s.prefix + "addr:" + address }
func (s *RedisStore) revokedKey(id string) string { return s.prefix + "revoked:" + id }
func (s *RedisStore) notifKey(userID string) string { return s.prefix + "notifications:" + userID }

// SaveNonce stores a nonce keyed by address with a TTL. A re-issued nonce
// overwrites the previous one, so only the latest issuance is valid.
func (s *RedisStore) SaveNonce(ctx context.Context, nonce *core.Nonce, ttl time.Duration) error {
	payload, err := json.Marshal(nonce)
	if err != nil {
		return fmt.Errorf("failed to marshal nonce: %w", err)
	}

	if err := s.client.Set(ctx, s.nonceKey(nonce.Address), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}

	return nil
}

// ConsumeNonce fetches and deletes the nonce in one round trip so a nonce
// can never be used twice.
func (s *RedisStore) ConsumeNonce(ctx context.Context, address string) (*core.Nonce, error) {
	payload, err := s.client.GetDel(ctx, s.nonceKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrInvalidNonce
		}
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}

	var nonce core.Nonce
	if err := json.Unmarshal([]byte(payload), &nonce); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nonce: %w", err)
	}

	return &nonce, nil
}

// SaveUser upserts a user record and its address index.
func (s *RedisStore) SaveUser(ctx context.Context, user *core.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := s.client.Set(ctx, s.userKey(user.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if err := s.client.Set(ctx, s.addrKey(user.WalletAddress), user.ID, 0).Err(); err != nil {
		return fmt.Errorf("failed to index user address: %w", err)
	}

	return nil
}

// GetUser fetches a user by ID.
func (s *RedisStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	payload, err := s.client.Get(ctx, s.userKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user core.User
	if err := json.Unmarshal([]byte(payload), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &user, nil
}

// GetUserByAddress fetches a user through the address index.
func (s *RedisStore) GetUserByAddress(ctx context.Context, address string) (*core.User, error) {
	id, err := s.client.Get(ctx, s.addrKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve user address: %w", err)
	}

	return s.GetUser(ctx, id)
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if err := s.client.Set(ctx, s.revokedKey(tokenID), "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}

// AddNotification appends a notification to the user's hash.
func (s *RedisStore) AddNotification(ctx context.Context, n *core.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := s.client.HSet(ctx, s.notifKey(n.UserID), n.ID, payload).Err(); err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}

	return nil
}

// Notifications lists a user's notifications, newest first.
func (s *RedisStore) Notifications(ctx context.Context, userID string) ([]*core.Notification, error) {
	entries, err := s.client.HGetAll(ctx, s.notifKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*core.Notification, 0, len(entries))
	for _, payload := range entries {
		var n core.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})

	return notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *RedisStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	payload, err := s.client.HGet(ctx, s.notifKey(userID), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}

	var n core.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	n.Read = true
	updated, err := json.Marshal(&n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := s.client.HSet(ctx, s.notifKey(userID), id, updated).Err(); err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}

	return nil
}

// MarkAllNotificationsRead marks every notification of the user as read.
func (s *RedisStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	notifications, err := s.Notifications(ctx, userID)
	if err != nil {
		return err
	}

	for _, n := range notifications {
		if n.Read {
			continue
		}
		if err := s.MarkNotificationRead(ctx, userID, n.ID); err != nil {
			return err
		}
	}

	return nil
}

// DeleteNotification removes a notification from the user's hash.
func (s *RedisStore) DeleteNotification(ctx context.Context, userID, id string) error {
	removed, err := s.client.HDel(ctx, s.notifKey(userID), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if removed == 0 {
		return core.ErrNotFound
	}

	return nil
}
