package pgstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/config"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return &Store{db: db, prefix: "doc_", logger: zap.NewNop()}, mock
}

func TestListenHubDefaultsIntervals(t *testing.T) {
	// A zero-valued StoreConfig must not leave the ping ticker with a zero
	// interval; the hub goroutine would panic on the first tick setup.
	hub, err := newListenHub("postgres://localhost/none", config.StoreConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.close() })

	assert.Equal(t, time.Minute, hub.timeout)
}

func TestBuildQueryEquality(t *testing.T) {
	q := store.Query{
		Collection: "notifications",
		Filters: []store.Filter{
			store.Eq("userId", "u1"),
			store.Eq("read", false),
		},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   20,
	}

	sql, args, err := buildQuery(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "collection = $1")
	assert.Contains(t, sql, "data->>'userId' = $2")
	assert.Contains(t, sql, "data->>'read' = $3")
	assert.Contains(t, sql, "ORDER BY created_at DESC, id DESC")
	assert.Contains(t, sql, "LIMIT 20")
	assert.Equal(t, []interface{}{"notifications", "u1", "false"}, args)
}

func TestBuildQueryInFilter(t *testing.T) {
	q := store.Query{
		Collection: "notices",
		Filters:    []store.Filter{store.In("classId", []string{"c1", "c2"})},
	}

	sql, args, err := buildQuery(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "data->>'classId' = ANY($2)")
	require.Len(t, args, 2)
}

func TestBuildQueryArrayContains(t *testing.T) {
	q := store.Query{
		Collection: "classes",
		Filters:    []store.Filter{store.ArrayContains("memberIds", "u1")},
	}

	sql, _, err := buildQuery(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "data->'memberIds' @> $2::jsonb")
}

func TestBuildQueryRejectsOversizedValueSet(t *testing.T) {
	values := make([]string, store.MaxInValues+1)
	for i := range values {
		values[i] = fmt.Sprintf("c%d", i)
	}
	q := store.Query{
		Collection: "notices",
		Filters:    []store.Filter{store.In("classId", values)},
	}

	_, _, err := buildQuery(q)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBuildQueryRejectsEmptyValueSet(t *testing.T) {
	q := store.Query{
		Collection: "notices",
		Filters:    []store.Filter{store.In("classId", nil)},
	}

	_, _, err := buildQuery(q)
	require.Error(t, err)
}

func TestBuildQueryCursor(t *testing.T) {
	q := store.Query{
		Collection: "activities",
		Desc:       true,
		Limit:      10,
		StartAfter: &store.Cursor{OrderValue: time.Now(), ID: "a9"},
	}

	sql, args, err := buildQuery(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "(created_at, id) < ($2, $3)")
	assert.Len(t, args, 3)
}

func TestQueryCacheScopeWithoutCacheMisses(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.Query(context.Background(), store.Query{Collection: "activities"}, store.ScopeCache)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCacheMiss.Code, appErrors.FromError(err).Code)
}

func TestQueryNetworkScope(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "data", "created_at"}).
		AddRow("a1", []byte(`{"title":"Revolução Francesa"}`), now).
		AddRow("a2", []byte(`not-json`), now)
	mock.ExpectQuery("SELECT id, data, created_at FROM documents").WillReturnRows(rows)

	docs, err := s.Query(context.Background(), store.Query{Collection: "activities"}, store.ScopeNetwork)
	require.NoError(t, err)
	require.Len(t, docs, 1, "undecodable documents are skipped, not fatal")
	assert.Equal(t, "a1", docs[0].ID)
	assert.Equal(t, "Revolução Francesa", docs[0].Data["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchWriteSingleTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pg_notify").
		WithArgs("doc_quiz_progress", "quiz_progress").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.BatchWrite(context.Background(), []store.WriteOp{
		store.Set("quiz_progress", "u1_q1", map[string]interface{}{"userId": "u1"}),
		store.Increment("quiz_progress", "u1_q1", "attempts", 1),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTransactionSurfacesDomainError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return appErrors.ErrAlreadyMember
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyMember.Code, appErrors.FromError(err).Code,
		"the callback's error must surface unchanged")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionGetMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, data, created_at FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "created_at"}))
	mock.ExpectRollback()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(ctx, "classes", "missing")
		return err
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeDottedPathMaterializesParents(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	// ensure row, ensure the "unlocked" parent object, then the leaf write.
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("pg_notify").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.BatchWrite(context.Background(), []store.WriteOp{
		store.Merge("user_achievements", "u1", map[string]interface{}{
			"unlocked.quiz-5": map[string]interface{}{"seen": false},
		}),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
