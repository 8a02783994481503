// internal/chain/receipt.go
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ReceiptSource fetches transaction receipts. Returns ethereum.NotFound
// while the transaction is still pending.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Awaiter polls for a receipt until it lands or the confirmation window
// expires. A timeout does not mean the transaction failed; callers must
// independently check chain status.
type Awaiter struct {
	source   ReceiptSource
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewAwaiter(source ReceiptSource, logger *zap.Logger, interval, timeout time.Duration) *Awaiter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Awaiter{
		source:   source,
		logger:   logger.Named("receipt-awaiter"),
		interval: interval,
		timeout:  timeout,
	}
}

func (a *Awaiter) Await(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	deadline := time.After(a.timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("confirmation timed out for %s", hash.Hex())
		case <-ticker.C:
			receipt, err := a.source.TransactionReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					continue
				}
				a.logger.Warn("Receipt lookup failed, will retry",
					zap.String("tx_hash", hash.Hex()),
					zap.Error(err))
				continue
			}
			a.logger.Debug("Receipt received",
				zap.String("tx_hash", hash.Hex()),
				zap.Uint64("block", receipt.BlockNumber.Uint64()),
				zap.Uint64("status", receipt.Status))
			return receipt, nil
		}
	}
}
