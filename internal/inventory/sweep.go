package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/audit"
)

// SweepExpiredHolds removes hold records whose expiry has passed and frees
// the slots they still hold. Slots that were meanwhile converted, booked or
// re-held by someone else are left untouched. It returns how many holds were
// swept.
func (c *Coordinator) SweepExpiredHolds(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	expired, err := c.store.ListExpiredHolds(ctx, c.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}

	swept := 0
	for _, h := range expired {
		var released []int
		err := c.store.WithTx(ctx, func(txCtx context.Context) error {
			// Losing the delete means the hold was consumed or swept elsewhere.
			if err := c.store.DeleteHold(txCtx, h.ID); err != nil {
				return err
			}
			var err error
			released, err = c.releaseOrRestore(txCtx, &h)
			return err
		})
		if errors.Is(err, ErrHoldNotFound) {
			continue
		}
		if err != nil {
			c.log.Warn("sweep expired hold",
				zap.Stringer("hold_id", h.ID),
				zap.Stringer("hall_id", h.HallID),
				zap.String("date", h.Date),
				zap.Error(err),
			)
			continue
		}

		swept++
		c.events.Record(ctx, h.ID, audit.EventHoldExpired, map[string]any{
			"hall_id":  h.HallID.String(),
			"date":     h.Date,
			"released": released,
		})
	}
	return swept, nil
}
