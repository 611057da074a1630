package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidNonce     = errors.New("invalid or expired nonce")
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotFound         = errors.New("not found")
)
