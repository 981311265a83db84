package syncer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
)

type subscriptionMetrics interface {
	RecordSubscriptionEvent(stream string)
}

// Handler consumes a fresh snapshot from a named stream.
type Handler func(stream string, docs []store.Document)

type watchedStream struct {
	sub  store.Subscription
	done chan struct{}
}

// Watcher owns the long-lived live-query subscriptions. Each named stream
// holds at most one subscription; rebinding with a new filter set tears the
// old one down first. Streams must be explicitly unbound (or the watcher
// closed) when the owning view goes away.
type Watcher struct {
	subscriber store.Subscriber
	handler    Handler
	metrics    subscriptionMetrics
	logger     *zap.Logger

	mu      sync.Mutex
	streams map[string]*watchedStream
	wg      sync.WaitGroup
	closed  bool
}

// NewWatcher constructs a watcher delivering snapshots to handler.
func NewWatcher(subscriber store.Subscriber, handler Handler, metrics subscriptionMetrics, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		subscriber: subscriber,
		handler:    handler,
		metrics:    metrics,
		logger:     logger,
		streams:    make(map[string]*watchedStream),
	}
}

// Bind subscribes the named stream to q, replacing any previous
// subscription under that name.
func (w *Watcher) Bind(ctx context.Context, stream string, q store.Query) error {
	w.Unbind(stream)

	sub, err := w.subscriber.Subscribe(ctx, q)
	if err != nil {
		return err
	}

	ws := &watchedStream{sub: sub, done: make(chan struct{})}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		sub.Close()
		return nil
	}
	w.streams[stream] = ws
	w.wg.Add(1)
	w.mu.Unlock()

	go w.pump(stream, ws)
	return nil
}

// Unbind tears down the named stream if bound.
func (w *Watcher) Unbind(stream string) {
	w.mu.Lock()
	ws, ok := w.streams[stream]
	if ok {
		delete(w.streams, stream)
	}
	w.mu.Unlock()
	if ok {
		close(ws.done)
		ws.sub.Close()
	}
}

// Close tears down every stream and waits for the pumps to exit.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	streams := w.streams
	w.streams = make(map[string]*watchedStream)
	w.mu.Unlock()

	for _, ws := range streams {
		close(ws.done)
		ws.sub.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) pump(stream string, ws *watchedStream) {
	defer w.wg.Done()
	for {
		select {
		case <-ws.done:
			return
		case docs, ok := <-ws.sub.Updates():
			if !ok {
				w.logger.Debug("subscription closed", zap.String("stream", stream))
				return
			}
			if w.metrics != nil {
				w.metrics.RecordSubscriptionEvent(stream)
			}
			w.handler(stream, docs)
		}
	}
}
