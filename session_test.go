package friendsly

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	authstore "github.com/0x-Crisbanks/Friendsly-sub000/adapters/store"
	"github.com/0x-Crisbanks/Friendsly-sub000/adapters/tokenizer"
	"github.com/0x-Crisbanks/Friendsly-sub000/internal/eth"
	"github.com/0x-Crisbanks/Friendsly-sub000/service"
	transporthttp "github.com/0x-Crisbanks/Friendsly-sub000/transport/http"
)

// harness wires a WalletSession against a real in-process backend: the gin
// router from transport/http backed by the auth service, reached over
// httptest. Only the wallet itself is scripted.
type harness struct {
	t         *testing.T
	serverURL string
	walletKey *ecdsa.PrivateKey
	provider  *MemoryProvider
	store     *MemoryStore
	session   *WalletSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	svc := service.NewAuthService(
		authstore.NewMemoryStore(),
		tokenizer.NewJWTTokenizer(signKey),
		nil,
		zap.NewNop(),
	)
	server := httptest.NewServer(transporthttp.SetupRouter(svc))
	t.Cleanup(server.Close)

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	h := &harness{
		t:         t,
		serverURL: server.URL,
		walletKey: walletKey,
		provider:  NewMemoryProvider(walletKey),
		store:     NewMemoryStore(),
	}
	h.session = h.newSession(DefaultConfig())
	return h
}

func (h *harness) newSession(cfg Config) *WalletSession {
	h.t.Helper()
	s, err := New(cfg, h.provider, NewHTTPBackend(h.serverURL), h.store, nil, zap.NewNop())
	require.NoError(h.t, err)
	return s
}

func (h *harness) account() string {
	return eth.AddressOf(h.walletKey)
}

func TestConnectSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "creator"))

	snap := h.session.Snapshot()
	assert.True(t, snap.IsConnected)
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsAuthenticating)
	assert.Equal(t, h.account(), snap.Account)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, h.account(), snap.Profile.WalletAddress)
	assert.Equal(t, "creator", snap.Profile.UserType)

	connected, err := h.store.Get(ctx, KeyWalletConnected)
	require.NoError(t, err)
	assert.Equal(t, "true", connected)

	token, err := h.store.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	legacyToken, err := h.store.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, token, legacyToken, "token must be mirrored to the legacy key")

	profile, err := h.store.Get(ctx, KeyUserProfile)
	require.NoError(t, err)
	mirrored, err := h.store.Get(ctx, KeyUserData)
	require.NoError(t, err)
	assert.Equal(t, profile, mirrored)
}

func TestConnectBalanceFetchFailsSoft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.SetBalance(eth.Ether(2))
	h.provider.FailBalance(errors.New("rpc node down"))

	// The balance is informational; a dead node must not block sign-in.
	require.NoError(t, h.session.Connect(ctx, ""))

	snap := h.session.Snapshot()
	assert.True(t, snap.IsConnected)
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "0", snap.Balance)

	// Once the node recovers, a refresh picks up the real balance.
	h.provider.FailBalance(nil)
	h.session.RefreshBalance(ctx)
	assert.Equal(t, "2", h.session.Snapshot().Balance)

	// A failed refresh keeps the last known value instead of zeroing it.
	h.provider.FailBalance(errors.New("rpc node down"))
	h.session.RefreshBalance(ctx)
	assert.Equal(t, "2", h.session.Snapshot().Balance)
}

func TestRestoreBalanceFetchFailsSoft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.SetBalance(eth.Ether(2))
	require.NoError(t, h.session.Connect(ctx, ""))

	h.provider.FailBalance(errors.New("rpc node down"))
	restored := h.newSession(DefaultConfig())

	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	snap := restored.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "0", snap.Balance)
}

func TestConnectProviderUnavailable(t *testing.T) {
	h := newHarness(t)
	h.provider.SetUnavailable(true)

	err := h.session.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestConnectAccountRequestRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provider.RejectConnect(true)

	err := h.session.Connect(ctx, "")
	assert.ErrorIs(t, err, ErrCancelled)

	snap := h.session.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.False(t, snap.IsAuthenticating)
}

func TestConnectSignRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provider.RejectSign(true)

	err := h.session.Connect(ctx, "")
	assert.ErrorIs(t, err, ErrCancelled)

	snap := h.session.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.False(t, snap.IsAuthenticated)

	// Nothing may survive a cancelled handshake.
	_, err = h.store.Get(ctx, KeySessionRecord)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = h.store.Get(ctx, KeyWalletConnected)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = h.store.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// staleNonceBackend submits a nonce the backend never issued, forcing a
// login rejection after a perfectly valid signature.
type staleNonceBackend struct {
	*HTTPBackend
}

func (b *staleNonceBackend) Login(ctx context.Context, address, signature, nonce string) (*LoginResult, error) {
	return b.HTTPBackend.Login(ctx, address, signature, "deadbeef")
}

func TestConnectBackendRejectsLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := New(
		DefaultConfig(),
		h.provider,
		&staleNonceBackend{NewHTTPBackend(h.serverURL)},
		h.store,
		nil,
		zap.NewNop(),
	)
	require.NoError(t, err)

	err = session.Connect(ctx, "")
	require.Error(t, err)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.GreaterOrEqual(t, backendErr.StatusCode, 400)
	assert.NotEmpty(t, backendErr.Message)

	snap := session.Snapshot()
	assert.False(t, snap.IsConnected)

	_, err = h.store.Get(ctx, KeySessionRecord)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = h.store.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// countingBackend counts nonce issuances and lets a test hold the first
// handshake open so a second Connect call piles up behind it.
type countingBackend struct {
	*HTTPBackend

	mu     sync.Mutex
	nonces int

	entered chan struct{}
	release chan struct{}
}

func (b *countingBackend) Nonce(ctx context.Context, address, userType string) (string, error) {
	b.mu.Lock()
	b.nonces++
	first := b.nonces == 1
	b.mu.Unlock()

	if first {
		close(b.entered)
		<-b.release
	}
	return b.HTTPBackend.Nonce(ctx, address, userType)
}

func (b *countingBackend) nonceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces
}

func TestConcurrentConnectSharesOneHandshake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	backend := &countingBackend{
		HTTPBackend: NewHTTPBackend(h.serverURL),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	session, err := New(DefaultConfig(), h.provider, backend, h.store, nil, zap.NewNop())
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() { errs <- session.Connect(ctx, "") }()

	// With the first handshake held open, a second caller must join it
	// rather than start its own.
	<-backend.entered
	go func() { errs <- session.Connect(ctx, "") }()
	time.Sleep(50 * time.Millisecond)
	close(backend.release)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, 1, backend.nonceCount(), "overlapping calls must share one handshake")
	assert.True(t, session.Snapshot().IsAuthenticated)
}

func TestRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "fan"))
	before := h.session.Snapshot()

	// A fresh process sharing the same store. Restore must not prompt for a
	// signature, so rejecting signing proves it never asks.
	restored := h.newSession(DefaultConfig())
	h.provider.RejectSign(true)

	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	snap := restored.Snapshot()
	assert.True(t, snap.IsConnected)
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, before.Account, snap.Account)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, before.Profile.ID, snap.Profile.ID)
}

func TestRestoreWithoutRecord(t *testing.T) {
	h := newHarness(t)

	ok, err := h.session.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreClearsStaleFlags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Legacy flags without a token, as left behind by an interrupted client.
	require.NoError(t, h.store.Set(ctx, KeyWalletConnected, "true"))
	require.NoError(t, h.store.Set(ctx, KeyWalletAddress, h.account()))

	ok, err := h.session.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.store.Get(ctx, KeyWalletConnected)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = h.store.Get(ctx, KeyWalletAddress)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRestoreWithoutProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, ""))

	h.provider.SetUnavailable(true)
	restored := h.newSession(DefaultConfig())

	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, ""))
	require.NoError(t, h.session.Logout(ctx))

	snap := h.session.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.False(t, snap.IsAuthenticated)
	assert.Equal(t, "0", snap.Balance)
	assert.Nil(t, snap.Profile)

	for _, key := range []string{
		KeySessionRecord, KeyWalletConnected, KeyUserAuthenticated,
		KeyWalletAddress, KeyToken, KeyAuthToken, KeyUserProfile, KeyUserData,
	} {
		_, err := h.store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrKeyNotFound, key)
	}

	require.NoError(t, h.session.Logout(ctx))
}

func TestUpdateProfileRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "creator"))

	displayName := "Alice"
	bio := "on-chain artist"
	profile, err := h.session.UpdateProfile(ctx, ProfileUpdate{
		DisplayName: &displayName,
		Bio:         &bio,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, "on-chain artist", profile.Bio)

	snap := h.session.Snapshot()
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Alice", snap.Profile.DisplayName)

	// The same store restores the updated profile.
	restored := h.newSession(DefaultConfig())
	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", restored.Snapshot().Profile.DisplayName)
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	h := newHarness(t)

	displayName := "Alice"
	_, err := h.session.UpdateProfile(context.Background(), ProfileUpdate{DisplayName: &displayName})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAccountsChangedToEmptyEndsSession(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.session.Connect(ctx, ""))

	go h.session.Run(ctx)
	h.provider.Emit(ProviderEvent{Type: EventAccountsChanged})

	require.Eventually(t, func() bool {
		return !h.session.Snapshot().IsConnected
	}, 2*time.Second, 10*time.Millisecond)

	_, err := h.store.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestAccountsChangedSwapsAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, ""))

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := eth.AddressOf(otherKey)

	h.session.handleEvent(ctx, ProviderEvent{
		Type:     EventAccountsChanged,
		Accounts: []string{other},
	})

	snap := h.session.Snapshot()
	assert.True(t, snap.IsConnected)
	assert.Equal(t, other, snap.Account)

	persisted, err := h.store.Get(ctx, KeyWalletAddress)
	require.NoError(t, err)
	assert.Equal(t, other, persisted)

	// The consolidated record must carry the new address too, not just the
	// legacy mirror.
	rec, err := h.session.readRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, other, rec.Address)
	assert.NotEmpty(t, rec.Token, "the token survives an account switch")
}

func TestAccountsChangedIgnoresMalformedAddress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, ""))
	before := h.session.Snapshot()

	h.session.handleEvent(ctx, ProviderEvent{
		Type:     EventAccountsChanged,
		Accounts: []string{"0xnothex"},
	})

	assert.Equal(t, before.Account, h.session.Snapshot().Account)
}

func TestEventsBeforeConnectAreNoOps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	h.session.handleEvent(ctx, ProviderEvent{
		Type:     EventAccountsChanged,
		Accounts: []string{eth.AddressOf(otherKey)},
	})
	h.session.handleEvent(ctx, ProviderEvent{Type: EventChainChanged})

	snap := h.session.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.Empty(t, snap.Account)
}

func TestDisconnectEventEndsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, ""))

	h.session.handleEvent(ctx, ProviderEvent{Type: EventDisconnected})

	assert.False(t, h.session.Snapshot().IsConnected)
}

func TestConnectPublishesSessionEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	updated, err := pubsub.Subscribe(ctx, TopicSessionUpdated)
	require.NoError(t, err)

	session, err := New(DefaultConfig(), h.provider, NewHTTPBackend(h.serverURL), h.store, pubsub, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, session.Connect(ctx, ""))

	select {
	case msg := <-updated:
		msg.Ack()
		assert.Contains(t, string(msg.Payload), h.account())
	case <-time.After(2 * time.Second):
		t.Fatal("no session update published")
	}
}

func TestLogoutRevokesBackendToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, ""))

	token, err := h.store.Get(ctx, KeyToken)
	require.NoError(t, err)
	userID := h.session.Snapshot().Profile.ID

	backend := NewHTTPBackend(h.serverURL)
	_, err = backend.Profile(ctx, token, userID)
	require.NoError(t, err)

	require.NoError(t, h.session.Logout(ctx))

	_, err = backend.Profile(ctx, token, userID)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, 401, backendErr.StatusCode)
}
