package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type mockQuerier struct {
	cacheDocs   []store.Document
	cacheErr    error
	networkDocs []store.Document
	networkErr  error
	cacheCalls  int
	netCalls    int
}

func (m *mockQuerier) Query(ctx context.Context, q store.Query, scope store.Scope) ([]store.Document, error) {
	if scope == store.ScopeCache {
		m.cacheCalls++
		return m.cacheDocs, m.cacheErr
	}
	m.netCalls++
	return m.networkDocs, m.networkErr
}

func doc(id string, age time.Duration) store.Document {
	return store.Document{
		Collection: "activities",
		ID:         id,
		Data:       map[string]interface{}{"title": id},
		CreatedAt:  time.Now().UTC().Add(-age),
	}
}

func TestExecutorCacheHit(t *testing.T) {
	querier := &mockQuerier{cacheDocs: []store.Document{doc("a1", time.Minute)}}
	exec := NewExecutor(querier, 0, nil, nil)

	docs, err := exec.Run(context.Background(), store.Query{Collection: "activities"}, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, querier.cacheCalls)
	assert.Equal(t, 0, querier.netCalls, "cache hit must not touch the network")
}

func TestExecutorEmptyCacheFallsThrough(t *testing.T) {
	querier := &mockQuerier{
		cacheDocs:   nil,
		networkDocs: []store.Document{doc("a1", time.Minute)},
	}
	exec := NewExecutor(querier, 0, nil, nil)

	docs, err := exec.Run(context.Background(), store.Query{Collection: "activities"}, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, querier.cacheCalls)
	assert.Equal(t, 1, querier.netCalls, "empty cache result counts as a miss")
}

func TestExecutorCacheErrorSwallowed(t *testing.T) {
	querier := &mockQuerier{
		cacheErr:    errors.New("redis gone"),
		networkDocs: []store.Document{doc("a1", time.Minute)},
	}
	exec := NewExecutor(querier, 0, nil, nil)

	docs, err := exec.Run(context.Background(), store.Query{Collection: "activities"}, false)
	require.NoError(t, err, "cache failures must never surface")
	assert.Len(t, docs, 1)
}

func TestExecutorNetworkErrorPropagates(t *testing.T) {
	querier := &mockQuerier{networkErr: errors.New("connection refused")}
	exec := NewExecutor(querier, 0, nil, nil)

	_, err := exec.Run(context.Background(), store.Query{Collection: "activities"}, true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
}

func TestExecutorForceRefreshSkipsCache(t *testing.T) {
	querier := &mockQuerier{
		cacheDocs:   []store.Document{doc("stale", time.Hour)},
		networkDocs: []store.Document{doc("fresh", time.Minute)},
	}
	exec := NewExecutor(querier, 0, nil, nil)

	docs, err := exec.Run(context.Background(), store.Query{Collection: "activities"}, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "fresh", docs[0].ID)
	assert.Equal(t, 0, querier.cacheCalls)
}
