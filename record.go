package friendsly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Persisted store keys. The token is written under both KeyToken and
// KeyAuthToken because older API clients read the legacy name, and the
// profile is mirrored under KeyUserData for the same reason.
const (
	KeyWalletConnected   = "wallet_connected"
	KeyUserAuthenticated = "user_authenticated"
	KeyWalletAddress     = "wallet_address"
	KeyToken             = "token"
	KeyAuthToken         = "auth_token"
	KeyUserProfile       = "user_profile"
	KeyUserData          = "user_data"
	KeyUserTransactions  = "user_transactions"
	KeySessionRecord     = "session_record"
)

const sessionRecordVersion = 1

// sessionRecord is the consolidated persisted form of a session. All legacy
// keys are derived from it through one write path.
type sessionRecord struct {
	Version       int             `json:"version"`
	Address       string          `json:"address"`
	Token         string          `json:"token,omitempty"`
	Profile       json.RawMessage `json:"profile,omitempty"`
	Connected     bool            `json:"connected"`
	Authenticated bool            `json:"authenticated"`
	SavedAt       time.Time       `json:"savedAt"`
}

// Profile is the subset of the backend profile the session reads itself.
// The raw record is persisted verbatim alongside it.
type Profile struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	Username      string `json:"username"`
	DisplayName   string `json:"displayName"`
	Bio           string `json:"bio"`
	UserType      string `json:"userType"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	Username    *string `json:"username,omitempty"`
	Bio         *string `json:"bio,omitempty"`
}

// FeeStatus describes the outcome of the platform-fee leg of a payment.
type FeeStatus string

const (
	FeePaid    FeeStatus = "paid"
	FeeFailed  FeeStatus = "failed"
	FeeSkipped FeeStatus = "skipped"
)

// TxRecord is one entry of the append-only client-side payment log.
type TxRecord struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Label           string    `json:"label,omitempty"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	TotalWei        string    `json:"totalWei"`
	RecipientWei    string    `json:"recipientWei"`
	FeeWei          string    `json:"feeWei"`
	RecipientTxHash string    `json:"recipientTxHash"`
	FeeTxHash       string    `json:"feeTxHash,omitempty"`
	FeeStatus       FeeStatus `json:"feeStatus"`
	BlockNumber     uint64    `json:"blockNumber"`
	Timestamp       time.Time `json:"timestamp"`
}

func (w *WalletSession) writeRecord(ctx context.Context, rec sessionRecord) error {
	rec.Version = sessionRecordVersion
	rec.SavedAt = time.Now()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := w.store.Set(ctx, KeySessionRecord, string(payload)); err != nil {
		return fmt.Errorf("failed to persist session record: %w", err)
	}

	// Mirror to the legacy keys.
	legacy := map[string]string{
		KeyWalletConnected:   fmt.Sprintf("%t", rec.Connected),
		KeyUserAuthenticated: fmt.Sprintf("%t", rec.Authenticated),
		KeyWalletAddress:     rec.Address,
	}
	if rec.Token != "" {
		legacy[KeyToken] = rec.Token
		legacy[KeyAuthToken] = rec.Token
	}
	if len(rec.Profile) > 0 {
		legacy[KeyUserProfile] = string(rec.Profile)
		legacy[KeyUserData] = string(rec.Profile)
	}
	for key, value := range legacy {
		if err := w.store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}

	return nil
}

func (w *WalletSession) readRecord(ctx context.Context) (*sessionRecord, error) {
	payload, err := w.store.Get(ctx, KeySessionRecord)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return w.readLegacyRecord(ctx)
		}
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}

	return &rec, nil
}

// readLegacyRecord reconstructs a record from the individual keys written by
// earlier clients.
func (w *WalletSession) readLegacyRecord(ctx context.Context) (*sessionRecord, error) {
	connected, err := w.store.Get(ctx, KeyWalletConnected)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	rec := &sessionRecord{Connected: connected == "true"}

	if addr, err := w.store.Get(ctx, KeyWalletAddress); err == nil {
		rec.Address = addr
	}
	if token, err := w.store.Get(ctx, KeyToken); err == nil {
		rec.Token = token
	} else if token, err := w.store.Get(ctx, KeyAuthToken); err == nil {
		rec.Token = token
	}
	if auth, err := w.store.Get(ctx, KeyUserAuthenticated); err == nil {
		rec.Authenticated = auth == "true"
	}
	if profile, err := w.store.Get(ctx, KeyUserProfile); err == nil {
		rec.Profile = json.RawMessage(profile)
	}

	return rec, nil
}

// clearRecord removes the session record and every legacy key. Missing keys
// are ignored, so clearing twice is safe.
func (w *WalletSession) clearRecord(ctx context.Context) error {
	keys := []string{
		KeySessionRecord,
		KeyWalletConnected,
		KeyUserAuthenticated,
		KeyWalletAddress,
		KeyToken,
		KeyAuthToken,
		KeyUserProfile,
		KeyUserData,
	}
	for _, key := range keys {
		if err := w.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrKeyNotFound) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// appendTxRecord appends an entry to the append-only payment log.
func (w *WalletSession) appendTxRecord(ctx context.Context, rec TxRecord) error {
	var records []TxRecord

	payload, err := w.store.Get(ctx, KeyUserTransactions)
	if err == nil {
		if err := json.Unmarshal([]byte(payload), &records); err != nil {
			return fmt.Errorf("failed to unmarshal transaction log: %w", err)
		}
	} else if !errors.Is(err, ErrKeyNotFound) {
		return err
	}

	records = append(records, rec)

	updated, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction log: %w", err)
	}

	return w.store.Set(ctx, KeyUserTransactions, string(updated))
}

// Transactions returns the persisted payment log, oldest first.
func (w *WalletSession) Transactions(ctx context.Context) ([]TxRecord, error) {
	payload, err := w.store.Get(ctx, KeyUserTransactions)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var records []TxRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction log: %w", err)
	}

	return records, nil
}
