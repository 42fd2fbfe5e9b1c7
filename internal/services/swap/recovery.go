package swap

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/ledger"
	"github.com/vadiminshakov/simpleswap/pkg/retrier"
)

var ErrNoReceipts = errors.New("ledger cannot report applied transfers")

// Recover resolves swaps left unfinished by a previous run. Each unresolved intent is
// checked against the ledger's receipts:
//   - input leg not applied: failed
//   - both legs applied: done
//   - only the input leg applied: refunded, then compensated (or stuck if the refund fails)
func (c *Contract) Recover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	unresolved := c.journal.Unresolved()
	if len(unresolved) == 0 {
		return nil
	}

	receipts, ok := c.ledger.(ledger.Receipts)
	if !ok {
		return errors.Wrapf(ErrNoReceipts, "%d swaps left unresolved", len(unresolved))
	}

	c.l.Info("Reconciling unresolved swaps", zap.Int("count", len(unresolved)))

	r := retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithInitialInterval(200*time.Millisecond),
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retrier.WithOnRetry(func(attempt int, err error) {
			c.l.Warn("retrying receipt lookup", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	for _, rec := range unresolved {
		status, err := c.resolve(ctx, r, receipts, rec)
		if err != nil {
			c.l.Error("Failed to reconcile swap",
				zap.String("swap_id", rec.ID),
				zap.Error(err))
			return err
		}
		c.metrics.ObserveRecovery(string(status))
		c.l.Info("swap reconciled",
			zap.String("swap_id", rec.ID),
			zap.String("status", string(status)))
	}
	return nil
}

func (c *Contract) resolve(ctx context.Context, r *retrier.Retrier, receipts ledger.Receipts, rec domain.SwapRecord) (domain.SwapStatus, error) {
	applied := func(id string) (bool, error) {
		if id == "" {
			return false, nil
		}
		return retrier.DoWithData(r, ctx, func(ctx context.Context) (bool, error) {
			return receipts.Applied(ctx, id)
		})
	}

	pulled, err := applied(rec.PullID)
	if err != nil {
		return "", errors.Wrapf(err, "check input leg of swap %s", rec.ID)
	}
	if !pulled {
		resolved, err := c.journal.MarkFailed(rec.ID, errors.New("interrupted before input leg"))
		if err != nil {
			return "", err
		}
		c.forget(ctx, resolved)
		return domain.SwapStatusFailed, nil
	}

	pushed, err := applied(rec.PushID)
	if err != nil {
		return "", errors.Wrapf(err, "check output leg of swap %s", rec.ID)
	}
	if pushed {
		resolved, err := c.journal.MarkDone(rec.ID)
		if err != nil {
			return "", err
		}
		c.forget(ctx, resolved)
		return domain.SwapStatusDone, nil
	}

	refunded, err := applied(rec.RefundID)
	if err != nil {
		return "", errors.Wrapf(err, "check refund of swap %s", rec.ID)
	}
	if refunded {
		resolved, err := c.journal.MarkCompensated(rec.ID)
		if err != nil {
			return "", err
		}
		c.forget(ctx, resolved)
		return domain.SwapStatusCompensated, nil
	}

	if err := c.refund(ctx, rec, errors.New("interrupted before output leg")); err != nil {
		return domain.SwapStatusStuck, nil
	}
	return domain.SwapStatusCompensated, nil
}
