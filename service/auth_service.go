package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0x-Crisbanks/Friendsly-sub000/core"
	"github.com/0x-Crisbanks/Friendsly-sub000/internal/eth"
	"github.com/0x-Crisbanks/Friendsly-sub000/ports"
)

// AuthService handles wallet authentication business logic
type AuthService struct {
	store     ports.Store
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	log       *zap.Logger

	nonceTTL  time.Duration
	accessTTL time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store ports.Store,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokenizer: tokenizer,
		eventPub:  eventPub,
		log:       log,
		nonceTTL:  5 * time.Minute,
		accessTTL: 24 * time.Hour,
	}
}

// CreateNonce issues a single-use login nonce for a wallet address. Issuing
// again for the same address replaces any previous nonce.
func (s *AuthService) CreateNonce(ctx context.Context, address, userType string) (string, error) {
	checksummed, err := eth.ValidateAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidAddress, err)
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	nonce := &core.Nonce{
		ID:        uuid.New().String(),
		Address:   checksummed,
		Value:     hex.EncodeToString(nonceBytes),
		UserType:  userType,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}

	if err := s.store.SaveNonce(ctx, nonce, s.nonceTTL); err != nil {
		return "", fmt.Errorf("failed to save nonce: %w", err)
	}

	return nonce.Value, nil
}

// Login verifies a signed challenge and mints an access token. The nonce is
// consumed before verification, so a failed attempt also burns it.
func (s *AuthService) Login(ctx context.Context, address, signature, nonceValue string) (string, *core.User, error) {
	checksummed, err := eth.ValidateAddress(address)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", core.ErrInvalidAddress, err)
	}

	nonce, err := s.store.ConsumeNonce(ctx, checksummed)
	if err != nil {
		return "", nil, err
	}

	if nonce.Value != nonceValue {
		return "", nil, core.ErrInvalidNonce
	}
	if time.Now().After(nonce.ExpiresAt) {
		return "", nil, core.ErrInvalidNonce
	}

	recovered, err := eth.RecoverAddress(eth.ChallengeMessage(nonce.Value), signature)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	if !eth.SameAddress(recovered, checksummed) {
		return "", nil, core.ErrInvalidSignature
	}

	user, err := s.findOrCreateUser(ctx, checksummed, nonce.UserType)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	session := &core.Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Address:      checksummed,
		IssuedAt:     now,
		AccessExpiry: now.Add(s.accessTTL),
	}

	token, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create access token: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, checksummed, user.ID); err != nil {
			s.log.Warn("failed to publish login event", zap.Error(err))
		}
	}

	return token, user, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, address, userType string) (*core.User, error) {
	user, err := s.store.GetUserByAddress(ctx, address)
	if err == nil {
		return user, nil
	}
	if err != core.ErrUserNotFound {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if userType == "" {
		userType = "fan"
	}

	now := time.Now()
	user = &core.User{
		ID:            uuid.New().String(),
		WalletAddress: address,
		Username:      "user_" + strings.ToLower(address[2:10]),
		UserType:      userType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	welcome := &core.Notification{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Kind:      "system",
		Message:   "Welcome to Friendsly! Complete your profile to get started.",
		CreatedAt: now,
	}
	if err := s.store.AddNotification(ctx, welcome); err != nil {
		s.log.Warn("failed to add welcome notification", zap.Error(err))
	}

	return user, nil
}

// ValidateAccessToken parses an access token and checks it against the
// revocation list.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(token)
	if err != nil {
		return nil, err
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	return session, nil
}

// Logout revokes an access token for its remaining lifetime.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.tokenizer.AccessTokenToSession(token)
	if err != nil {
		return err
	}

	remaining := time.Until(session.AccessExpiry)
	if remaining <= 0 {
		// Already expired; nothing to revoke.
		return nil
	}

	if err := s.store.InvalidateToken(ctx, session.ID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, session.Address, session.ID); err != nil {
			s.log.Warn("failed to publish logout event", zap.Error(err))
		}
	}

	return nil
}

// GetUser fetches a user record by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*core.User, error) {
	return s.store.GetUser(ctx, id)
}

// UpdateProfile applies the non-nil fields of upd to the user's profile and
// returns the canonical record.
func (s *AuthService) UpdateProfile(ctx context.Context, id string, upd core.ProfileUpdate) (*core.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.DisplayName != nil {
		user.DisplayName = *upd.DisplayName
	}
	if upd.Username != nil {
		user.Username = *upd.Username
	}
	if upd.Bio != nil {
		user.Bio = *upd.Bio
	}
	user.UpdatedAt = time.Now()

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	return user, nil
}

// Notifications lists a user's notifications, newest first.
func (s *AuthService) Notifications(ctx context.Context, userID string) ([]*core.Notification, error) {
	return s.store.Notifications(ctx, userID)
}

// MarkNotificationRead marks one notification as read.
func (s *AuthService) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id)
}

// MarkAllNotificationsRead marks all of a user's notifications as read.
func (s *AuthService) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

// DeleteNotification removes one notification.
func (s *AuthService) DeleteNotification(ctx context.Context, userID, id string) error {
	return s.store.DeleteNotification(ctx, userID, id)
}
