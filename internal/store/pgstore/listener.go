package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/config"
)

// snapshotFn re-executes a subscribed query against the network.
type snapshotFn func(ctx context.Context, q store.Query) ([]store.Document, error)

// subscription delivers full query snapshots. The updates channel carries a
// buffer of one; a slow consumer sees only the freshest snapshot.
type subscription struct {
	query   store.Query
	updates chan []store.Document
	once    sync.Once
	hub     *listenHub
}

func (s *subscription) Updates() <-chan []store.Document {
	return s.updates
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.updates)
	})
}

func (s *subscription) push(docs []store.Document) {
	// Replace a stale pending snapshot rather than blocking the hub.
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- docs:
	default:
	}
}

// listenHub multiplexes one pq.Listener over all live subscriptions. A
// NOTIFY on a collection channel re-runs every query subscribed to that
// collection and fans the snapshots out.
type listenHub struct {
	listener *pq.Listener
	snapshot snapshotFn
	prefix   string
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	subs     map[string][]*subscription
	listened map[string]struct{}
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func newListenHub(dsn string, cfg config.StoreConfig, snapshot snapshotFn, logger *zap.Logger) (*listenHub, error) {
	minInterval := cfg.ListenMinInterval
	if minInterval <= 0 {
		minInterval = 10 * time.Second
	}
	maxInterval := cfg.ListenMaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Minute
	}

	h := &listenHub{
		snapshot: snapshot,
		prefix:   cfg.NotifyChannelPrefix,
		timeout:  maxInterval,
		logger:   logger,
		subs:     make(map[string][]*subscription),
		listened: make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	h.listener = pq.NewListener(dsn, minInterval, maxInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})

	h.wg.Add(1)
	go h.loop()
	return h, nil
}

func (h *listenHub) channel(collection string) string {
	return h.prefix + collection
}

// add registers a subscription and delivers an initial snapshot.
func (h *listenHub) add(ctx context.Context, q store.Query) (*subscription, error) {
	sub := &subscription{query: q, updates: make(chan []store.Document, 1), hub: h}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.updates) })
		return sub, nil
	}
	h.subs[q.Collection] = append(h.subs[q.Collection], sub)
	_, already := h.listened[q.Collection]
	if !already {
		h.listened[q.Collection] = struct{}{}
	}
	h.mu.Unlock()

	if !already {
		if err := h.listener.Listen(h.channel(q.Collection)); err != nil && err != pq.ErrChannelAlreadyOpen {
			h.remove(sub)
			return nil, err
		}
	}

	docs, err := h.snapshot(ctx, q)
	if err != nil {
		h.remove(sub)
		return nil, err
	}
	sub.push(docs)
	return sub, nil
}

func (h *listenHub) remove(target *subscription) {
	collection := target.query.Collection

	h.mu.Lock()
	kept := h.subs[collection][:0]
	for _, sub := range h.subs[collection] {
		if sub != target {
			kept = append(kept, sub)
		}
	}
	h.subs[collection] = kept
	unlisten := len(kept) == 0 && !h.closed
	if unlisten {
		delete(h.listened, collection)
	}
	h.mu.Unlock()

	if unlisten {
		if err := h.listener.Unlisten(h.channel(collection)); err != nil && err != pq.ErrChannelNotOpen {
			h.logger.Warn("unlisten failed", zap.String("collection", collection), zap.Error(err))
		}
	}
}

func (h *listenHub) loop() {
	defer h.wg.Done()
	ping := time.NewTicker(h.timeout)
	defer ping.Stop()

	for {
		select {
		case <-h.done:
			return
		case n := <-h.listener.Notify:
			if n == nil {
				// Reconnect; every subscribed query may be stale.
				h.refreshAll()
				continue
			}
			h.refresh(n.Extra)
		case <-ping.C:
			if err := h.listener.Ping(); err != nil {
				h.logger.Warn("listener ping failed", zap.Error(err))
			}
		}
	}
}

func (h *listenHub) refresh(collection string) {
	h.mu.Lock()
	targets := append([]*subscription(nil), h.subs[collection]...)
	h.mu.Unlock()
	h.deliver(targets)
}

func (h *listenHub) refreshAll() {
	h.mu.Lock()
	var targets []*subscription
	for _, subs := range h.subs {
		targets = append(targets, subs...)
	}
	h.mu.Unlock()
	h.deliver(targets)
}

func (h *listenHub) deliver(targets []*subscription) {
	for _, sub := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		docs, err := h.snapshot(ctx, sub.query)
		cancel()
		if err != nil {
			h.logger.Warn("snapshot refresh failed",
				zap.String("collection", sub.query.Collection), zap.Error(err))
			continue
		}
		sub.push(docs)
	}
}

func (h *listenHub) close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()
	return h.listener.Close()
}
