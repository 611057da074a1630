package friendsly

import (
	"errors"
)

var (
	// ErrProviderUnavailable is returned when no wallet provider is attached.
	// Callers are expected to direct the user to a wallet installation page.
	ErrProviderUnavailable = errors.New("no wallet provider available")

	// ErrCancelled is returned when the user declines a wallet prompt. The
	// session is left untouched and the caller may simply re-attempt.
	ErrCancelled = errors.New("request cancelled by user")

	// ErrNoAccounts is returned when the provider grants access but exposes
	// no accounts.
	ErrNoAccounts = errors.New("wallet provider returned no accounts")

	// ErrNotConnected is returned when an operation requires an active
	// wallet connection.
	ErrNotConnected = errors.New("wallet is not connected")

	// ErrKeyNotFound is returned by stores for missing keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTransferFailed is returned when an on-chain transfer is not
	// confirmed successfully.
	ErrTransferFailed = errors.New("transfer failed")
)

// BackendError carries a backend rejection with its original message so the
// UI can surface it verbatim.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return e.Message
}
