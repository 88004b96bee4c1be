package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	redisclient "github.com/hackgods/banquet-slot-booking/internal/redis"
)

const reconcileLockName = "reconciler"

// HoldSweeper frees slots of expired holds.
type HoldSweeper interface {
	SweepExpiredHolds(ctx context.Context, limit int) (int, error)
}

// Locker serialises reconciler passes across processes.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Reconciler runs the background passes that repair state left behind by
// abandoned holds and interrupted sagas.
type Reconciler struct {
	holds    HoldSweeper
	bookings *Service
	locker   Locker
	log      *zap.Logger
	batch    int
}

// NewReconciler builds a reconciler. A nil locker runs every pass directly,
// which is only safe with a single process.
func NewReconciler(holds HoldSweeper, bookings *Service, locker Locker, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{holds: holds, bookings: bookings, locker: locker, log: log, batch: 100}
}

type PassResult struct {
	HoldsExpired       int
	BookingsFinalized  int
	RejectionsReleased int
}

// RunOnce executes one pass of every reconciler job. It returns
// redisclient.ErrLockNotAcquired when another process holds the lock.
func (r *Reconciler) RunOnce(ctx context.Context) (PassResult, error) {
	var res PassResult
	pass := func(ctx context.Context) error {
		var errs []error
		var err error

		if res.HoldsExpired, err = r.holds.SweepExpiredHolds(ctx, r.batch); err != nil {
			errs = append(errs, err)
		}
		if res.BookingsFinalized, err = r.bookings.ResumeFinalizations(ctx, r.batch); err != nil {
			errs = append(errs, err)
		}
		if res.RejectionsReleased, err = r.bookings.ReleaseRejected(ctx, r.batch); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	if r.locker == nil {
		return res, pass(ctx)
	}
	err := r.locker.WithLock(ctx, reconcileLockName, pass)
	return res, err
}

// Run calls RunOnce every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)

		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	start := time.Now()
	res, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		r.log.Debug("reconciler pass skipped, lock held elsewhere")
		return
	case err != nil:
		r.log.Error("reconciler pass", zap.Error(err))
	}

	if res.HoldsExpired+res.BookingsFinalized+res.RejectionsReleased > 0 {
		r.log.Info("reconciler pass",
			zap.Int("holds_expired", res.HoldsExpired),
			zap.Int("bookings_finalized", res.BookingsFinalized),
			zap.Int("rejections_released", res.RejectionsReleased),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
