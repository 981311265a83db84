package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

// queryMetrics is the instrumentation surface the executor reports to.
type queryMetrics interface {
	RecordCacheLookup(hit bool)
	ObserveStoreQuery(collection string, duration time.Duration)
}

// Executor wraps bulk reads with the try-cache-then-network policy. The
// cache tier is an optimization, never a hard dependency: cache errors are
// swallowed, network errors propagate.
type Executor struct {
	store   store.Querier
	timeout time.Duration
	metrics queryMetrics
	logger  *zap.Logger
}

// NewExecutor constructs the executor. A zero timeout disables deadlines.
func NewExecutor(querier store.Querier, timeout time.Duration, metrics queryMetrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: querier, timeout: timeout, metrics: metrics, logger: logger}
}

// Run executes q. With forceRefresh false it attempts a cache-scoped read
// first; an error or an empty result both count as a cache miss (an empty
// cache and a legitimately empty result set are indistinguishable here) and
// fall through to a network-scoped read.
func (e *Executor) Run(ctx context.Context, q store.Query, forceRefresh bool) ([]store.Document, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if !forceRefresh {
		docs, err := e.store.Query(ctx, q, store.ScopeCache)
		if err == nil && len(docs) > 0 {
			if e.metrics != nil {
				e.metrics.RecordCacheLookup(true)
			}
			return docs, nil
		}
		if err != nil && appErrors.FromError(err).Code != appErrors.ErrCacheMiss.Code {
			e.logger.Warn("cache read failed, falling back to network",
				zap.String("collection", q.Collection), zap.Error(err))
		}
		if e.metrics != nil {
			e.metrics.RecordCacheLookup(false)
		}
	}

	start := time.Now()
	docs, err := e.store.Query(ctx, q, store.ScopeNetwork)
	if e.metrics != nil {
		e.metrics.ObserveStoreQuery(q.Collection, time.Since(start))
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, "query timed out")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "network read failed")
	}
	return docs, nil
}
