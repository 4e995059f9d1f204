// Package reconciler runs the polling loop that gives transfers forward
// progress. The bridge provider offers no push notifications, so this loop
// is the only writer that ever moves a transfer out of a waiting state.
package reconciler

import (
	"context"
	"time"

	"crest/internal/config"
	"crest/internal/models"
	"crest/internal/services/bridge"

	"go.uber.org/zap"
)

// Advancer is the slice of the settlement service the reconciler drives.
type Advancer interface {
	ListOpenTransfers(ctx context.Context) ([]models.Transfer, error)
	Advance(ctx context.Context, transfer *models.Transfer) (bool, error)
}

// Reconciler polls the bridge for every open transfer on a fixed interval.
type Reconciler struct {
	advancer Advancer
	interval time.Duration
	alertAt  int

	// transientFailures counts consecutive transient bridge errors per
	// transfer id. Only the loop goroutine touches it.
	transientFailures map[uint]int

	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a reconciler over the given advancer.
func New(advancer Advancer, cfg config.SettlementConfig) *Reconciler {
	return &Reconciler{
		advancer:          advancer,
		interval:          cfg.PollInterval,
		alertAt:           cfg.AlertThreshold,
		transientFailures: make(map[uint]int),
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
}

// Start launches the polling loop in its own goroutine. The first sweep
// runs immediately so a restart picks up in-flight transfers without
// waiting a full interval.
func (r *Reconciler) Start(ctx context.Context) {
	zap.L().Info("Starting settlement reconciler",
		zap.Duration("interval", r.interval))

	go func() {
		defer close(r.doneChan)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.sweep(ctx)
		for {
			select {
			case <-ticker.C:
				r.sweep(ctx)
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the in-flight sweep to end.
func (r *Reconciler) Stop() {
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Settlement reconciler stopped")
}

// sweep advances every open transfer once. Transfer failures never abort
// the sweep; each transfer is reconciled independently.
func (r *Reconciler) sweep(ctx context.Context) {
	transfers, err := r.advancer.ListOpenTransfers(ctx)
	if err != nil {
		zap.L().Error("Failed to list open transfers", zap.Error(err))
		return
	}

	// Drop counters for transfers no longer open, including ones another
	// instance terminalized; otherwise the map grows forever.
	open := make(map[uint]struct{}, len(transfers))
	for i := range transfers {
		open[transfers[i].ID] = struct{}{}
	}
	for id := range r.transientFailures {
		if _, ok := open[id]; !ok {
			delete(r.transientFailures, id)
		}
	}

	if len(transfers) == 0 {
		return
	}

	var advanced int
	for i := range transfers {
		transfer := &transfers[i]

		moved, err := r.advancer.Advance(ctx, transfer)
		if err != nil {
			r.recordFailure(transfer, err)
			continue
		}

		delete(r.transientFailures, transfer.ID)
		if moved {
			advanced++
		}
	}

	if advanced > 0 {
		zap.L().Info("Reconciliation sweep complete",
			zap.Int("open", len(transfers)),
			zap.Int("advanced", advanced))
	}
}

// recordFailure tracks consecutive transient errors per transfer and raises
// an operator-visible alert once the threshold is crossed. Non-transient
// errors are logged but not counted; they either resolve through a terminal
// transition on a later sweep or need manual attention anyway.
func (r *Reconciler) recordFailure(transfer *models.Transfer, err error) {
	if !bridge.IsTransient(err) {
		zap.L().Error("Failed to advance transfer",
			zap.String("transfer_id", transfer.PublicID),
			zap.Error(err))
		return
	}

	r.transientFailures[transfer.ID]++
	count := r.transientFailures[transfer.ID]

	if count == r.alertAt {
		zap.L().Error("ALERT: transfer stuck behind repeated bridge failures",
			zap.String("transfer_id", transfer.PublicID),
			zap.String("status", transfer.Status),
			zap.Int("consecutive_failures", count),
			zap.Error(err))
		return
	}

	zap.L().Warn("Transient bridge failure, will retry next sweep",
		zap.String("transfer_id", transfer.PublicID),
		zap.Int("consecutive_failures", count),
		zap.Error(err))
}
