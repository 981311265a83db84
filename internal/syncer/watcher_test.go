package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
)

type fakeSubscription struct {
	updates chan []store.Document
	once    sync.Once
}

func (f *fakeSubscription) Updates() <-chan []store.Document { return f.updates }

func (f *fakeSubscription) Close() {
	f.once.Do(func() { close(f.updates) })
}

type fakeSubscriber struct {
	mu   sync.Mutex
	subs []*fakeSubscription
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{updates: make(chan []store.Document, 1)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func collectSnapshots() (Handler, func() map[string]int) {
	var mu sync.Mutex
	counts := map[string]int{}
	handler := func(stream string, docs []store.Document) {
		mu.Lock()
		counts[stream]++
		mu.Unlock()
	}
	snapshot := func() map[string]int {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int, len(counts))
		for k, v := range counts {
			out[k] = v
		}
		return out
	}
	return handler, snapshot
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestWatcherDeliversSnapshots(t *testing.T) {
	subscriber := &fakeSubscriber{}
	handler, counts := collectSnapshots()
	w := NewWatcher(subscriber, handler, nil, nil)
	defer w.Close()

	require.NoError(t, w.Bind(context.Background(), "private", store.Query{Collection: "notifications"}))
	subscriber.last().updates <- []store.Document{{ID: "n1"}}

	waitFor(t, func() bool { return counts()["private"] == 1 })
}

func TestWatcherRebindReplacesSubscription(t *testing.T) {
	subscriber := &fakeSubscriber{}
	handler, counts := collectSnapshots()
	w := NewWatcher(subscriber, handler, nil, nil)
	defer w.Close()

	require.NoError(t, w.Bind(context.Background(), "broadcast", store.Query{Collection: "notices"}))
	first := subscriber.last()

	require.NoError(t, w.Bind(context.Background(), "broadcast", store.Query{Collection: "notices"}))
	second := subscriber.last()
	require.NotSame(t, first, second)

	second.updates <- []store.Document{{ID: "b1"}}
	waitFor(t, func() bool { return counts()["broadcast"] == 1 })
}

func TestWatcherCloseStopsDelivery(t *testing.T) {
	subscriber := &fakeSubscriber{}
	handler, counts := collectSnapshots()
	w := NewWatcher(subscriber, handler, nil, nil)

	require.NoError(t, w.Bind(context.Background(), "private", store.Query{Collection: "notifications"}))
	w.Close()

	assert.Equal(t, 0, counts()["private"])
}
