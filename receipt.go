package ethbind

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

/*
Waits for transaction receipts by querying the node at a fixed interval.

A missing receipt means the transaction isn't mined yet, and is retried. Any
RPC error ends polling immediately. "Timeout" bounds the total wait; zero means
no bound, in which case only the context can end an unsuccessful wait.
*/
type ReceiptPoller struct {
	Client   Client
	Interval time.Duration // default "DefaultReceiptInterval"
	Timeout  time.Duration
	Logger   hclog.Logger
}

/*
Queries the receipt immediately, then every "Interval" until it appears.
Returns "ErrReceiptTimeout" (wrapped) if "Timeout" elapses first.
*/
func (self ReceiptPoller) Poll(ctx context.Context, hash Hash) (*TxReceipt, error) {
	interval := self.Interval
	if interval <= 0 {
		interval = DefaultReceiptInterval
	}
	logger := self.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	pollCtx := ctx
	if self.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, self.Timeout)
		defer cancel()
	}

	var receipt *TxReceipt
	var err error
	attempts := 0

	task := Schedule(pollCtx, interval, func(ctx context.Context) bool {
		attempts++
		ReceiptPolls.Inc()

		receipt, err = self.Client.GetTransactionReceipt(ctx, hash)
		if err != nil || receipt != nil {
			return false
		}

		logger.Trace("receipt not available yet", "tx", hash, "attempt", attempts)
		return true
	})
	<-task.Done()

	if receipt != nil {
		logger.Debug("receipt found", "tx", hash, "attempts", attempts)
		return receipt, nil
	}

	if ctx.Err() == nil && pollCtx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrapf(ErrReceiptTimeout, `transaction %v after %v`, hash, self.Timeout)
	}
	if err != nil {
		return nil, errors.Wrapf(err, `failed to get receipt of transaction %v`, hash)
	}
	return nil, errors.Wrapf(ctx.Err(), `stopped waiting for receipt of transaction %v`, hash)
}
