package friendsly

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0x-Crisbanks/Friendsly-sub000/internal/eth"
)

const transferGasLimit = 21000

// RPCProvider is a wallet provider backed by a JSON-RPC node and a locally
// held key. It fills the role of the injected browser wallet for headless
// clients: the key signs both personal messages and transfers.
type RPCProvider struct {
	client *ethclient.Client
	key    *ecdsa.PrivateKey

	pollInterval time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewRPCProvider dials an RPC endpoint and wraps it with a signing key.
func NewRPCProvider(rpcURL string, key *ecdsa.PrivateKey) (*RPCProvider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	return &RPCProvider{
		client:       client,
		key:          key,
		pollInterval: time.Second,
	}, nil
}

// Available reports whether the provider can serve requests.
func (p *RPCProvider) Available() bool {
	return p.client != nil && p.key != nil
}

// RequestAccounts returns the key's account. There is no interactive prompt
// for a locally held key, so this never blocks or rejects.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return []string{eth.AddressOf(p.key)}, nil
}

// Accounts returns the key's account without prompting.
func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	return []string{eth.AddressOf(p.key)}, nil
}

// SignMessage signs a personal message with the provider's key.
func (p *RPCProvider) SignMessage(ctx context.Context, account string, message []byte) (string, error) {
	if !eth.SameAddress(account, eth.AddressOf(p.key)) {
		return "", fmt.Errorf("unknown account %s", account)
	}
	return eth.SignMessage(p.key, message)
}

// BalanceAt returns the account's latest balance in wei.
func (p *RPCProvider) BalanceAt(ctx context.Context, account string) (*big.Int, error) {
	balance, err := p.client.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return nil, fmt.Errorf("balance query failed: %w", err)
	}
	return balance, nil
}

// SendTransfer submits a plain value transfer and blocks until the
// transaction is mined, then checks the receipt status.
func (p *RPCProvider) SendTransfer(ctx context.Context, from, to string, amount *big.Int) (*TransferReceipt, error) {
	if !eth.SameAddress(from, eth.AddressOf(p.key)) {
		return nil, fmt.Errorf("unknown account %s", from)
	}

	fromAddr := common.HexToAddress(from)

	nonce, err := p.client.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	chainID, err := p.getChainID(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(to), amount, transferGasLimit, gasPrice, nil)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := p.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}

	return &TransferReceipt{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// Events returns nil: a locally held key never switches accounts or chains
// behind the session's back.
func (p *RPCProvider) Events() <-chan ProviderEvent {
	return nil
}

func (p *RPCProvider) getChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chainID != nil {
		return p.chainID, nil
	}

	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	p.chainID = chainID
	return chainID, nil
}

func (p *RPCProvider) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transaction %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
