package friendsly

import (
	"context"
	"encoding/json"
	"math/big"
)

// EventType identifies an asynchronous wallet provider notification.
type EventType string

const (
	EventAccountsChanged EventType = "accountsChanged"
	EventChainChanged    EventType = "chainChanged"
	EventConnected       EventType = "connect"
	EventDisconnected    EventType = "disconnect"
)

// ProviderEvent is an asynchronous notification emitted by the wallet
// provider. Events may fire at any time, independent of in-flight calls.
type ProviderEvent struct {
	Type     EventType
	Accounts []string
	ChainID  string
}

// TransferReceipt describes a confirmed native-token transfer.
type TransferReceipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Provider is the wallet capability the session depends on: account access,
// message signing, balance reads and confirmed transfers.
type Provider interface {
	// Available reports whether a wallet is attached at all.
	Available() bool

	// RequestAccounts asks the wallet for account access interactively.
	// Returns ErrCancelled when the user declines.
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)

	// SignMessage signs a personal message with the given account. Returns
	// ErrCancelled when the user declines.
	SignMessage(ctx context.Context, account string, message []byte) (string, error)

	// BalanceAt returns the account's native-token balance in wei.
	BalanceAt(ctx context.Context, account string) (*big.Int, error)

	// SendTransfer submits a native-token transfer and waits until it is
	// confirmed on chain.
	SendTransfer(ctx context.Context, from, to string, amount *big.Int) (*TransferReceipt, error)

	// Events returns the provider's notification stream, or nil if the
	// provider emits none.
	Events() <-chan ProviderEvent
}

// LoginResult is the backend's response to a successful signature login.
// Profile is kept raw so it can be persisted verbatim.
type LoginResult struct {
	AccessToken string
	Profile     json.RawMessage
}

// Backend is the HTTP API the session authenticates against.
type Backend interface {
	// Nonce requests a single-use login nonce for an address.
	Nonce(ctx context.Context, address, userType string) (string, error)

	// Login exchanges a signed nonce for an access token and profile.
	Login(ctx context.Context, address, signature, nonce string) (*LoginResult, error)

	// Logout revokes the access token server-side.
	Logout(ctx context.Context, token string) error

	// Profile fetches the canonical profile record.
	Profile(ctx context.Context, token, userID string) (json.RawMessage, error)

	// UpdateProfile applies a profile update and returns the canonical
	// record.
	UpdateProfile(ctx context.Context, token, userID string, upd ProfileUpdate) (json.RawMessage, error)
}

// Store persists session state across restarts. Implementations must return
// ErrKeyNotFound for missing keys; Delete of a missing key is a no-op.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
