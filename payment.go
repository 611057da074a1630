package friendsly

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0x-Crisbanks/Friendsly-sub000/internal/eth"
)

// PaymentRequest describes a tip or subscription payment to a creator.
type PaymentRequest struct {
	Recipient string // creator wallet address
	Amount    string // decimal ether string, e.g. "1.0"
	Kind      string // "tip" or "subscription"
	Label     string // optional free-form description
}

// PaymentSplit is the wei-exact division of a payment into its two legs.
type PaymentSplit struct {
	Total     *big.Int
	Fee       *big.Int
	Recipient *big.Int

	RecipientAddress string
	PlatformAddress  string
}

// PayReceipt is the typed outcome of a payment. The recipient leg succeeded
// whenever a receipt is returned; FeeStatus records the soft-failure state
// of the platform-fee leg.
type PayReceipt struct {
	TxHash    string
	Split     PaymentSplit
	Recipient *TransferReceipt
	Fee       *TransferReceipt
	FeeStatus FeeStatus
	FeeError  string
}

// Pay executes a split payment: the creator leg is submitted and confirmed
// strictly before the fee leg. A creator-leg failure aborts the whole
// operation; a fee-leg failure is logged and reported on the receipt but
// does not fail the payment, because the creator was paid.
func (w *WalletSession) Pay(ctx context.Context, req PaymentRequest) (*PayReceipt, error) {
	snap := w.Snapshot()
	if w.provider == nil || !w.provider.Available() || !snap.IsConnected {
		return nil, ErrNotConnected
	}

	split, err := w.splitPayment(req.Recipient, req.Amount)
	if err != nil {
		return nil, err
	}

	recipientReceipt, err := w.provider.SendTransfer(ctx, snap.Account, split.RecipientAddress, split.Recipient)
	if err != nil {
		// The fee leg must never be sent if the creator was not paid.
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	receipt := &PayReceipt{
		TxHash:    recipientReceipt.TxHash,
		Split:     *split,
		Recipient: recipientReceipt,
		FeeStatus: FeePaid,
	}

	if split.Fee.Sign() == 0 {
		receipt.FeeStatus = FeeSkipped
	} else {
		feeReceipt, err := w.provider.SendTransfer(ctx, snap.Account, split.PlatformAddress, split.Fee)
		if err != nil {
			receipt.FeeStatus = FeeFailed
			receipt.FeeError = err.Error()
			w.log.Warn("platform fee leg failed",
				zap.String("recipient_tx", recipientReceipt.TxHash),
				zap.Error(err))
		} else {
			receipt.Fee = feeReceipt
		}
	}

	record := TxRecord{
		ID:              uuid.New().String(),
		Kind:            req.Kind,
		Label:           req.Label,
		From:            snap.Account,
		To:              split.RecipientAddress,
		TotalWei:        split.Total.String(),
		RecipientWei:    split.Recipient.String(),
		FeeWei:          split.Fee.String(),
		RecipientTxHash: recipientReceipt.TxHash,
		FeeStatus:       receipt.FeeStatus,
		BlockNumber:     recipientReceipt.BlockNumber,
		Timestamp:       time.Now(),
	}
	if receipt.Fee != nil {
		record.FeeTxHash = receipt.Fee.TxHash
	}
	if err := w.appendTxRecord(ctx, record); err != nil {
		w.log.Warn("failed to append transaction record", zap.Error(err))
	}

	w.RefreshBalance(ctx)

	return receipt, nil
}

// splitPayment validates both addresses and computes the wei-exact split
// before any transaction is constructed.
func (w *WalletSession) splitPayment(recipient, amount string) (*PaymentSplit, error) {
	recipientAddr, err := eth.ValidateAddress(recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	total, err := eth.ParseAmount(amount)
	if err != nil {
		return nil, err
	}

	fee, recipientAmount := eth.SplitAmount(total, w.feePercent)

	return &PaymentSplit{
		Total:            total,
		Fee:              fee,
		Recipient:        recipientAmount,
		RecipientAddress: recipientAddr,
		PlatformAddress:  w.platformAddress,
	}, nil
}
