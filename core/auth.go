package core

import "time"

// Nonce is a single-use login challenge issued for one wallet address. It is
// consumed by exactly one signed message; a stale or reused nonce is
// rejected at login.
type Nonce struct {
	ID        string    // Unique identifier for the issuance
	Address   string    // Checksummed wallet address the nonce was issued to
	Value     string    // Random value embedded in the signed challenge
	UserType  string    // Optional role hint ("fan", "creator")
	IssuedAt  time.Time // When the nonce was created
	ExpiresAt time.Time // When the nonce expires
}

// Session represents an authenticated session minted after a successful
// signature verification.
type Session struct {
	ID           string    // Unique session identifier
	UserID       string    // ID of the authenticated user
	Address      string    // Checksummed wallet address
	IssuedAt     time.Time // When the session was created
	AccessExpiry time.Time // When the access token expires
}
