package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/jobs"
)

type mockQueue struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockQueue) Enqueue(j jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, j)
	return nil
}

type mockRollbacks struct {
	operations []string
}

func (m *mockRollbacks) RecordRollback(op string) {
	m.operations = append(m.operations, op)
}

func TestReconcilerAppliesBeforeWrite(t *testing.T) {
	var order []string
	r := NewReconciler(0, nil, nil, nil)

	err := r.Do(context.Background(), Mutation{
		Name:  "test",
		Apply: func() { order = append(order, "apply") },
		Write: func(ctx context.Context) error {
			order = append(order, "write")
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"apply", "write"}, order, "local apply must precede the remote write")
}

func TestReconcilerRevertsOnFailure(t *testing.T) {
	rollbacks := &mockRollbacks{}
	r := NewReconciler(0, nil, rollbacks, nil)
	reverted := false

	err := r.Do(context.Background(), Mutation{
		Name:   "submit_activity",
		Apply:  func() {},
		Write:  func(ctx context.Context) error { return errors.New("write refused") },
		Revert: func() { reverted = true },
	})
	require.Error(t, err)
	assert.True(t, reverted)
	assert.Equal(t, []string{"submit_activity"}, rollbacks.operations)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
}

func TestReconcilerSchedulesResyncWithoutRevert(t *testing.T) {
	queue := &mockQueue{}
	r := NewReconciler(0, queue, nil, nil)

	err := r.Do(context.Background(), Mutation{
		Name:      "grade_submission",
		Write:     func(ctx context.Context) error { return errors.New("write refused") },
		ResyncKey: "submissions:a1_s1",
	})
	require.Error(t, err)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "submissions:a1_s1", queue.enqueued[0].Key)
	assert.Equal(t, "resync", queue.enqueued[0].Type)
}

func TestReconcilerDomainConflictPassesThrough(t *testing.T) {
	r := NewReconciler(0, nil, nil, nil)

	err := r.Do(context.Background(), Mutation{
		Name:  "join_class",
		Write: func(ctx context.Context) error { return appErrors.ErrAlreadyMember },
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyMember.Code, appErrors.FromError(err).Code,
		"domain conflicts must keep their typed identity")
}

func TestReconcilerDomainConflictSkipsResync(t *testing.T) {
	queue := &mockQueue{}
	r := NewReconciler(0, queue, nil, nil)

	err := r.Do(context.Background(), Mutation{
		Name:      "join_class",
		Write:     func(ctx context.Context) error { return appErrors.ErrAlreadyMember },
		ResyncKey: "enrollments:u1",
	})
	require.Error(t, err)
	assert.Empty(t, queue.enqueued,
		"a cleanly rejected conflict leaves nothing to re-fetch")
}

func TestReconcilerSuccessTouchesNothing(t *testing.T) {
	queue := &mockQueue{}
	rollbacks := &mockRollbacks{}
	r := NewReconciler(0, queue, rollbacks, nil)
	reverted := false

	err := r.Do(context.Background(), Mutation{
		Name:      "mark_read",
		Write:     func(ctx context.Context) error { return nil },
		Revert:    func() { reverted = true },
		ResyncKey: "notifications:u1",
	})
	require.NoError(t, err)
	assert.False(t, reverted)
	assert.Empty(t, queue.enqueued)
	assert.Empty(t, rollbacks.operations)
}
