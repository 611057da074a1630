package friendsly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend talks to the Friendsly API over HTTP.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend client for the given base URL.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Nonce requests a single-use login nonce for an address.
func (b *HTTPBackend) Nonce(ctx context.Context, address, userType string) (string, error) {
	body := map[string]string{"walletAddress": address}
	if userType != "" {
		body["userType"] = userType
	}

	var resp struct {
		Nonce string `json:"nonce"`
	}
	if err := b.do(ctx, http.MethodPost, "/auth/web3/nonce", "", body, &resp); err != nil {
		return "", err
	}

	return resp.Nonce, nil
}

// Login exchanges a signed nonce for an access token and profile.
func (b *HTTPBackend) Login(ctx context.Context, address, signature, nonce string) (*LoginResult, error) {
	body := map[string]string{
		"walletAddress": address,
		"signature":     signature,
		"nonce":         nonce,
	}

	var resp struct {
		AccessToken string          `json:"accessToken"`
		User        json.RawMessage `json:"user"`
	}
	if err := b.do(ctx, http.MethodPost, "/auth/web3/login", "", body, &resp); err != nil {
		return nil, err
	}

	return &LoginResult{AccessToken: resp.AccessToken, Profile: resp.User}, nil
}

// Logout revokes the access token server-side.
func (b *HTTPBackend) Logout(ctx context.Context, token string) error {
	return b.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// Profile fetches the canonical profile record.
func (b *HTTPBackend) Profile(ctx context.Context, token, userID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := b.do(ctx, http.MethodGet, "/users/"+userID, token, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UpdateProfile applies a profile update and returns the canonical record.
func (b *HTTPBackend) UpdateProfile(ctx context.Context, token, userID string, upd ProfileUpdate) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := b.do(ctx, http.MethodPut, "/users/"+userID, token, upd, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return backendErrorFrom(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// backendErrorFrom surfaces the backend's own error message so the UI can
// render it verbatim.
func backendErrorFrom(resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)

	var body struct {
		Error string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(payload, &body); err == nil {
		message = body.Error
	}
	if message == "" {
		message = fmt.Sprintf("backend returned status %d", resp.StatusCode)
	}

	return &BackendError{StatusCode: resp.StatusCode, Message: message}
}
