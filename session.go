package friendsly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0x-Crisbanks/Friendsly-sub000/internal/eth"
)

// Topics for local session events. Consumers subscribe through the
// watermill publisher passed at construction.
const (
	TopicSessionUpdated = "friendsly.session.updated"
	TopicProfileUpdated = "friendsly.session.profile_updated"
	TopicSessionLogout  = "friendsly.session.logout"
)

// Session is a snapshot of the client-side authentication state.
type Session struct {
	Account          string
	Balance          string
	IsConnected      bool
	IsAuthenticated  bool
	IsAuthenticating bool
	Profile          *Profile
}

// Config holds the session's tunables.
type Config struct {
	// PlatformAddress receives the platform fee leg of every payment.
	PlatformAddress string

	// PlatformFeePercent is the integer percentage of each payment kept as
	// platform fee, rounded down in wei arithmetic.
	PlatformFeePercent int64

	// ConnectTimeout bounds the interactive account request.
	ConnectTimeout time.Duration

	// BalanceTimeout bounds each best-effort balance fetch.
	BalanceTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PlatformAddress:    "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		PlatformFeePercent: 10,
		ConnectTimeout:     30 * time.Second,
		BalanceTimeout:     5 * time.Second,
	}
}

// WalletSession owns wallet connection state, drives the sign-in handshake
// against the backend and executes split payments. All dependencies are
// injected; there is no ambient global state.
type WalletSession struct {
	provider  Provider
	backend   Backend
	store     Store
	publisher message.Publisher
	log       *zap.Logger

	platformAddress string
	feePercent      int64
	connectTimeout  time.Duration
	balanceTimeout  time.Duration

	mu      sync.RWMutex
	session Session

	// connectGroup collapses overlapping Connect calls into one handshake
	// whose outcome every caller shares.
	connectGroup singleflight.Group
}

// New creates a wallet session. The publisher may be nil, in which case no
// local events are broadcast.
func New(cfg Config, provider Provider, backend Backend, store Store, publisher message.Publisher, log *zap.Logger) (*WalletSession, error) {
	platform, err := eth.ValidateAddress(cfg.PlatformAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid platform address: %w", err)
	}
	if cfg.PlatformFeePercent < 0 || cfg.PlatformFeePercent > 100 {
		return nil, fmt.Errorf("platform fee percent out of range: %d", cfg.PlatformFeePercent)
	}
	if log == nil {
		log = zap.NewNop()
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}
	balanceTimeout := cfg.BalanceTimeout
	if balanceTimeout == 0 {
		balanceTimeout = 5 * time.Second
	}

	return &WalletSession{
		provider:        provider,
		backend:         backend,
		store:           store,
		publisher:       publisher,
		log:             log,
		platformAddress: platform,
		feePercent:      cfg.PlatformFeePercent,
		connectTimeout:  connectTimeout,
		balanceTimeout:  balanceTimeout,
		session:         Session{Balance: "0"},
	}, nil
}

// Snapshot returns a copy of the current session state.
func (w *WalletSession) Snapshot() Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.session
}

// Connect requests wallet access, authenticates against the backend and
// populates the session. Overlapping calls share a single in-flight
// handshake. A user rejection returns ErrCancelled with the session left
// untouched, so the caller can tell cancellation from success.
func (w *WalletSession) Connect(ctx context.Context, userTypeHint string) error {
	if w.provider == nil || !w.provider.Available() {
		return ErrProviderUnavailable
	}

	_, err, _ := w.connectGroup.Do("connect", func() (interface{}, error) {
		return nil, w.connect(ctx, userTypeHint)
	})
	return err
}

func (w *WalletSession) connect(ctx context.Context, userTypeHint string) error {
	w.setAuthenticating(true)
	defer w.setAuthenticating(false)

	reqCtx, cancel := context.WithTimeout(ctx, w.connectTimeout)
	accounts, err := w.provider.RequestAccounts(reqCtx)
	cancel()
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return ErrCancelled
		}
		return fmt.Errorf("account request failed: %w", err)
	}
	if len(accounts) == 0 {
		return ErrNoAccounts
	}

	account, err := eth.ValidateAddress(accounts[0])
	if err != nil {
		return fmt.Errorf("wallet returned malformed address: %w", err)
	}

	balance := w.fetchBalance(ctx, account)

	// Optimistic population; rolled back below if the handshake fails.
	w.mu.Lock()
	w.session.Account = account
	w.session.Balance = balance
	w.session.IsConnected = true
	w.session.IsAuthenticated = true
	w.mu.Unlock()

	if err := w.writeRecord(ctx, sessionRecord{
		Address:       account,
		Connected:     true,
		Authenticated: true,
	}); err != nil {
		w.rollbackConnect(ctx)
		return err
	}

	if err := w.authenticate(ctx, account, userTypeHint); err != nil {
		w.rollbackConnect(ctx)
		return err
	}

	w.publishSessionUpdated()
	return nil
}

func (w *WalletSession) rollbackConnect(ctx context.Context) {
	w.mu.Lock()
	w.session = Session{Balance: "0"}
	w.mu.Unlock()

	if err := w.clearRecord(ctx); err != nil {
		w.log.Warn("failed to revert persisted session", zap.Error(err))
	}
}

// authenticate runs the nonce/signature/login handshake. On any failure no
// token or profile is left persisted.
func (w *WalletSession) authenticate(ctx context.Context, account, userTypeHint string) error {
	nonce, err := w.backend.Nonce(ctx, account, userTypeHint)
	if err != nil {
		return fmt.Errorf("nonce request failed: %w", err)
	}

	signature, err := w.provider.SignMessage(ctx, account, eth.ChallengeMessage(nonce))
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			// Deliberate cancellation point, distinct from other failures.
			return ErrCancelled
		}
		return fmt.Errorf("message signing failed: %w", err)
	}

	result, err := w.backend.Login(ctx, account, signature, nonce)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(result.Profile, &profile); err != nil {
		return fmt.Errorf("failed to decode profile: %w", err)
	}

	if err := w.writeRecord(ctx, sessionRecord{
		Address:       account,
		Token:         result.AccessToken,
		Profile:       result.Profile,
		Connected:     true,
		Authenticated: true,
	}); err != nil {
		return err
	}

	w.mu.Lock()
	w.session.Profile = &profile
	w.mu.Unlock()

	w.publishProfileUpdated(result.Profile)
	return nil
}

// Restore re-establishes a previously persisted session without re-running
// the signature handshake. It reports whether a session was restored.
// Persisted flags without a token are treated as stale and cleared.
func (w *WalletSession) Restore(ctx context.Context) (bool, error) {
	rec, err := w.readRecord(ctx)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if !rec.Connected {
		return false, nil
	}

	if rec.Token == "" {
		if err := w.clearRecord(ctx); err != nil {
			w.log.Warn("failed to clear stale session flags", zap.Error(err))
		}
		return false, nil
	}

	if w.provider == nil || !w.provider.Available() {
		return false, nil
	}

	accounts, err := w.provider.Accounts(ctx)
	if err != nil {
		// Restore is best-effort; the user can still connect interactively.
		w.log.Warn("silent account derivation failed", zap.Error(err))
		return false, nil
	}
	if len(accounts) == 0 {
		return false, nil
	}

	account, err := eth.ValidateAddress(accounts[0])
	if err != nil {
		w.log.Warn("provider returned malformed address on restore", zap.Error(err))
		return false, nil
	}

	balance := w.fetchBalance(ctx, account)

	var profile *Profile
	if len(rec.Profile) > 0 {
		var p Profile
		if err := json.Unmarshal(rec.Profile, &p); err == nil {
			profile = &p
		}
	}

	w.mu.Lock()
	w.session = Session{
		Account:         account,
		Balance:         balance,
		IsConnected:     true,
		IsAuthenticated: true,
		Profile:         profile,
	}
	w.mu.Unlock()

	w.publishSessionUpdated()
	return true, nil
}

// Logout tears the session down completely: the backend token is revoked
// best-effort, every persisted key is removed and the in-memory state is
// reset. Calling it twice is safe.
func (w *WalletSession) Logout(ctx context.Context) error {
	if token := w.accessToken(ctx); token != "" {
		if err := w.backend.Logout(ctx, token); err != nil {
			w.log.Warn("backend logout failed", zap.Error(err))
		}
	}

	if err := w.clearRecord(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	hadSession := w.session.IsConnected
	w.session = Session{Balance: "0"}
	w.mu.Unlock()

	if hadSession {
		w.publishEvent(TopicSessionLogout, nil)
	}
	return nil
}

// Disconnect is an alias for Logout; a provider disconnect ends the session.
func (w *WalletSession) Disconnect(ctx context.Context) error {
	return w.Logout(ctx)
}

// UpdateProfile pushes a profile update to the backend, persists the
// canonical result and broadcasts a profile-updated event.
func (w *WalletSession) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Profile, error) {
	snap := w.Snapshot()
	if !snap.IsAuthenticated || snap.Profile == nil {
		return nil, ErrNotConnected
	}

	token := w.accessToken(ctx)
	if token == "" {
		return nil, ErrNotConnected
	}

	raw, err := w.backend.UpdateProfile(ctx, token, snap.Profile.ID, upd)
	if err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	if err := w.writeRecord(ctx, sessionRecord{
		Address:       snap.Account,
		Token:         token,
		Profile:       raw,
		Connected:     true,
		Authenticated: true,
	}); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.session.Profile = &profile
	w.mu.Unlock()

	w.publishProfileUpdated(raw)
	return &profile, nil
}

// RefreshBalance re-reads the account balance. Failures leave the previous
// value in place; balance is informational only.
func (w *WalletSession) RefreshBalance(ctx context.Context) {
	snap := w.Snapshot()
	if !snap.IsConnected {
		return
	}

	bctx, cancel := context.WithTimeout(ctx, w.balanceTimeout)
	defer cancel()

	wei, err := w.provider.BalanceAt(bctx, snap.Account)
	if err != nil {
		w.log.Warn("balance refresh failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.session.Balance = eth.FormatAmount(wei)
	w.mu.Unlock()
}

// Run consumes the provider's event stream and reconciles the session:
// account changes swap the account, an empty account list or a disconnect
// ends the session, chain changes refresh the balance. Events arriving
// before any connect are harmless no-ops. Run returns when ctx is done or
// the stream closes.
func (w *WalletSession) Run(ctx context.Context) {
	events := w.provider.Events()
	if events == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		}
	}
}

func (w *WalletSession) handleEvent(ctx context.Context, ev ProviderEvent) {
	switch ev.Type {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			if err := w.Logout(ctx); err != nil {
				w.log.Warn("logout after account removal failed", zap.Error(err))
			}
			return
		}

		account, err := eth.ValidateAddress(ev.Accounts[0])
		if err != nil {
			w.log.Warn("ignoring malformed account change", zap.Error(err))
			return
		}

		w.mu.Lock()
		if !w.session.IsConnected || w.session.Account == account {
			w.mu.Unlock()
			return
		}
		w.session.Account = account
		w.mu.Unlock()

		// The switch goes through the consolidated record so the legacy
		// mirrors and the record never disagree on the address.
		if rec, err := w.readRecord(ctx); err == nil {
			rec.Address = account
			if err := w.writeRecord(ctx, *rec); err != nil {
				w.log.Warn("failed to persist switched account", zap.Error(err))
			}
		} else {
			w.log.Warn("failed to load session record for account switch", zap.Error(err))
		}
		w.RefreshBalance(ctx)
		w.publishSessionUpdated()

	case EventChainChanged:
		w.RefreshBalance(ctx)

	case EventDisconnected:
		if err := w.Logout(ctx); err != nil {
			w.log.Warn("logout after provider disconnect failed", zap.Error(err))
		}
	}
}

// fetchBalance is a best-effort balance read: any failure, including RPC
// timeouts, yields "0" rather than failing the surrounding flow.
func (w *WalletSession) fetchBalance(ctx context.Context, account string) string {
	bctx, cancel := context.WithTimeout(ctx, w.balanceTimeout)
	defer cancel()

	wei, err := w.provider.BalanceAt(bctx, account)
	if err != nil {
		w.log.Warn("balance fetch failed, defaulting to zero", zap.Error(err))
		return "0"
	}
	return eth.FormatAmount(wei)
}

func (w *WalletSession) accessToken(ctx context.Context) string {
	token, err := w.store.Get(ctx, KeyToken)
	if err != nil {
		return ""
	}
	return token
}

func (w *WalletSession) setAuthenticating(v bool) {
	w.mu.Lock()
	w.session.IsAuthenticating = v
	w.mu.Unlock()
}

func (w *WalletSession) publishSessionUpdated() {
	snap := w.Snapshot()
	payload, err := json.Marshal(map[string]interface{}{
		"account":       snap.Account,
		"balance":       snap.Balance,
		"connected":     snap.IsConnected,
		"authenticated": snap.IsAuthenticated,
	})
	if err != nil {
		return
	}
	w.publishEvent(TopicSessionUpdated, payload)
}

func (w *WalletSession) publishProfileUpdated(profile json.RawMessage) {
	w.publishEvent(TopicProfileUpdated, profile)
}

func (w *WalletSession) publishEvent(topic string, payload []byte) {
	if w.publisher == nil {
		return
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := w.publisher.Publish(topic, msg); err != nil {
		w.log.Warn("failed to publish session event", zap.String("topic", topic), zap.Error(err))
	}
}
