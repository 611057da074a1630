package friendsly

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0x-Crisbanks/Friendsly-sub000/internal/eth"
)

// MemoryTransfer records one transfer submitted through a MemoryProvider.
type MemoryTransfer struct {
	From   string
	To     string
	Amount *big.Int
}

// MemoryProvider is a scripted wallet provider for tests. It signs with a
// real key so backend signature verification genuinely passes, and exposes
// knobs for user rejection, per-destination transfer failures and
// asynchronous events.
type MemoryProvider struct {
	mu          sync.Mutex
	key         *ecdsa.PrivateKey
	unavailable bool

	rejectConnect bool
	rejectSign    bool

	balance       *big.Int
	balanceErr    error
	failTransfers map[string]error
	transfers     []MemoryTransfer
	blockNumber   uint64

	events chan ProviderEvent
}

// NewMemoryProvider creates a provider around a signing key.
func NewMemoryProvider(key *ecdsa.PrivateKey) *MemoryProvider {
	return &MemoryProvider{
		key:           key,
		balance:       big.NewInt(0),
		failTransfers: make(map[string]error),
		events:        make(chan ProviderEvent, 16),
	}
}

// SetUnavailable simulates the wallet extension being absent.
func (p *MemoryProvider) SetUnavailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = v
}

// RejectConnect makes the next account requests fail as user rejections.
func (p *MemoryProvider) RejectConnect(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectConnect = v
}

// RejectSign makes signature requests fail as user rejections.
func (p *MemoryProvider) RejectSign(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectSign = v
}

// SetBalance sets the account balance in wei.
func (p *MemoryProvider) SetBalance(wei *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = new(big.Int).Set(wei)
}

// FailBalance makes balance reads fail with err; nil restores them.
func (p *MemoryProvider) FailBalance(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balanceErr = err
}

// FailTransfersTo makes transfers to the given address fail with err.
func (p *MemoryProvider) FailTransfersTo(address string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failTransfers[address] = err
}

// Transfers returns the submitted transfers in submission order.
func (p *MemoryProvider) Transfers() []MemoryTransfer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MemoryTransfer, len(p.transfers))
	copy(out, p.transfers)
	return out
}

// Emit pushes a provider event to subscribers.
func (p *MemoryProvider) Emit(ev ProviderEvent) {
	p.events <- ev
}

// Available reports whether the simulated wallet is attached.
func (p *MemoryProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.unavailable
}

// RequestAccounts returns the key's account, or a user rejection.
func (p *MemoryProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rejectConnect {
		return nil, fmt.Errorf("user rejected the request (code 4001): %w", ErrCancelled)
	}
	return []string{eth.AddressOf(p.key)}, nil
}

// Accounts returns the key's account without prompting.
func (p *MemoryProvider) Accounts(ctx context.Context) ([]string, error) {
	return []string{eth.AddressOf(p.key)}, nil
}

// SignMessage signs with the provider's key, or rejects if scripted to.
func (p *MemoryProvider) SignMessage(ctx context.Context, account string, message []byte) (string, error) {
	p.mu.Lock()
	reject := p.rejectSign
	p.mu.Unlock()

	if reject {
		return "", fmt.Errorf("user rejected signing (code 4001): %w", ErrCancelled)
	}
	if !eth.SameAddress(account, eth.AddressOf(p.key)) {
		return "", fmt.Errorf("unknown account %s", account)
	}
	return eth.SignMessage(p.key, message)
}

// BalanceAt returns the scripted balance or failure.
func (p *MemoryProvider) BalanceAt(ctx context.Context, account string) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balanceErr != nil {
		return nil, p.balanceErr
	}
	return new(big.Int).Set(p.balance), nil
}

// SendTransfer records the transfer and returns a synthetic confirmed
// receipt, unless a failure is scripted for the destination.
func (p *MemoryProvider) SendTransfer(ctx context.Context, from, to string, amount *big.Int) (*TransferReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.failTransfers[to]; ok {
		return nil, err
	}

	p.transfers = append(p.transfers, MemoryTransfer{
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	p.balance.Sub(p.balance, amount)
	p.blockNumber++

	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, p.blockNumber)
	hash := crypto.Keccak256Hash(append([]byte(from+to), seed...))

	return &TransferReceipt{
		TxHash:      hash.Hex(),
		BlockNumber: p.blockNumber,
		GasUsed:     transferGasLimit,
	}, nil
}

// Events returns the scripted event stream.
func (p *MemoryProvider) Events() <-chan ProviderEvent {
	return p.events
}
