package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/0x-Crisbanks/Friendsly-sub000/core"
	"github.com/0x-Crisbanks/Friendsly-sub000/ports"
)

type storedNonce struct {
	nonce     *core.Nonce
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	nonces            map[string]storedNonce
	users             map[string]*core.User
	usersByAddress    map[string]string
	invalidatedTokens map[string]time.Time
	notifications     map[string]map[string]*core.Notification
	mu                sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		nonces:            make(map[string]storedNonce),
		users:             make(map[string]*core.User),
		usersByAddress:    make(map[string]string),
		invalidatedTokens: make(map[string]time.Time),
		notifications:     make(map[string]map[string]*core.Notification),
	}
}

// SaveNonce stores a nonce keyed by wallet address.
func (s *MemoryStore) SaveNonce(ctx context.Context, nonce *core.Nonce, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[nonce.Address] = storedNonce{
		nonce:     nonce,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// ConsumeNonce fetches and deletes the nonce so it can be used at most once.
func (s *MemoryStore) ConsumeNonce(ctx context.Context, address string) (*core.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.nonces[address]
	if !exists {
		return nil, core.ErrInvalidNonce
	}
	delete(s.nonces, address)

	if time.Now().After(stored.expiresAt) {
		return nil, core.ErrInvalidNonce
	}

	return stored.nonce, nil
}

// SaveUser upserts a user record.
func (s *MemoryStore) SaveUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *user
	s.users[user.ID] = &copied
	s.usersByAddress[user.WalletAddress] = user.ID
	return nil
}

// GetUser fetches a user by ID.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, core.ErrUserNotFound
	}

	copied := *user
	return &copied, nil
}

// GetUserByAddress fetches a user by checksummed wallet address.
func (s *MemoryStore) GetUserByAddress(ctx context.Context, address string) (*core.User, error) {
	s.mu.RLock()
	id, exists := s.usersByAddress[address]
	s.mu.RUnlock()

	if !exists {
		return nil, core.ErrUserNotFound
	}

	return s.GetUser(ctx, id)
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidatedTokens[tokenID] = time.Now().Add(expiry)
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	if time.Now().After(expiryTime) {
		return false, nil
	}

	return true, nil
}

// AddNotification appends a notification for a user.
func (s *MemoryStore) AddNotification(ctx context.Context, n *core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notifications[n.UserID] == nil {
		s.notifications[n.UserID] = make(map[string]*core.Notification)
	}

	copied := *n
	s.notifications[n.UserID][n.ID] = &copied
	return nil
}

// Notifications lists a user's notifications, newest first.
func (s *MemoryStore) Notifications(ctx context.Context, userID string) ([]*core.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.notifications[userID]
	notifications := make([]*core.Notification, 0, len(entries))
	for _, n := range entries {
		copied := *n
		notifications = append(notifications, &copied)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})

	return notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *MemoryStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[userID][id]
	if !exists {
		return core.ErrNotFound
	}

	n.Read = true
	return nil
}

// MarkAllNotificationsRead marks every notification of the user as read.
func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[userID] {
		n.Read = true
	}
	return nil
}

// DeleteNotification removes one notification.
func (s *MemoryStore) DeleteNotification(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[userID][id]; !exists {
		return core.ErrNotFound
	}

	delete(s.notifications[userID], id)
	return nil
}
