package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/jobs"
)

type rollbackMetrics interface {
	RecordRollback(operation string)
}

type resyncQueue interface {
	Enqueue(jobs.Job) error
}

// Mutation is one optimistic write: the local change applies immediately,
// the remote write follows, and on failure either Revert runs or a resync
// job re-fetches the still-correct server state.
type Mutation struct {
	Name      string
	Apply     func()
	Write     func(ctx context.Context) error
	Revert    func()
	ResyncKey string
}

// Reconciler runs optimistic mutations with a shared failure policy.
type Reconciler struct {
	timeout time.Duration
	queue   resyncQueue
	metrics rollbackMetrics
	logger  *zap.Logger
}

// NewReconciler constructs a reconciler. Queue may be nil when no resync
// dispatcher is available; failures without a Revert are then surfaced only.
func NewReconciler(timeout time.Duration, queue resyncQueue, metrics rollbackMetrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{timeout: timeout, queue: queue, metrics: metrics, logger: logger}
}

// Do applies the mutation locally, issues the remote write, and reconciles
// on failure. Domain conflicts pass through typed so callers can translate
// them to specific user-facing messages.
func (r *Reconciler) Do(ctx context.Context, m Mutation) error {
	if m.Apply != nil {
		m.Apply()
	}

	writeCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	err := m.Write(writeCtx)
	if err == nil {
		return nil
	}

	r.logger.Warn("optimistic write failed",
		zap.String("operation", m.Name), zap.Error(err))

	if m.Revert != nil {
		m.Revert()
		if r.metrics != nil {
			r.metrics.RecordRollback(m.Name)
		}
	} else if r.queue != nil && m.ResyncKey != "" && !appErrors.IsDomainConflict(err) {
		// A rejected conflict leaves server state untouched; only failures
		// that may have partially landed need a resync.
		if qErr := r.queue.Enqueue(jobs.Job{Key: m.ResyncKey, Type: "resync", Payload: m.Name}); qErr != nil {
			r.logger.Error("failed to schedule resync",
				zap.String("operation", m.Name), zap.Error(qErr))
		}
	}

	if appErrors.IsDomainConflict(err) {
		return err
	}
	e := appErrors.FromError(err)
	if e.Code == appErrors.ErrInternal.Code {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, m.Name+" failed")
	}
	return err
}
