package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/jobs"
)

type mockActivityRepo struct {
	deepDive    []store.Document
	submissions []models.Submission
	created     []models.Submission
	createErr   error
	graded      []string
	gradeErr    error
	rebuilt     []string
}

func (m *mockActivityRepo) DeepDive(ctx context.Context, classID string, limit int, forceRefresh bool) ([]store.Document, error) {
	return m.deepDive, nil
}

func (m *mockActivityRepo) ListSubmissions(ctx context.Context, activityID string, forceRefresh bool) ([]models.Submission, error) {
	return m.submissions, nil
}

func (m *mockActivityRepo) CreateSubmission(ctx context.Context, sub models.Submission) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, sub)
	return nil
}

func (m *mockActivityRepo) Grade(ctx context.Context, activityID, studentID string, grade int, feedback string) error {
	if m.gradeErr != nil {
		return m.gradeErr
	}
	m.graded = append(m.graded, activityID+"_"+studentID)
	return nil
}

func (m *mockActivityRepo) UpdateFeedback(ctx context.Context, activityID, studentID, feedback string) error {
	return nil
}

func (m *mockActivityRepo) RebuildProjection(ctx context.Context, activityID string) error {
	m.rebuilt = append(m.rebuilt, activityID)
	return nil
}

type stubFeedRunner struct {
	docs []store.Document
}

func (s *stubFeedRunner) Run(ctx context.Context, q store.Query, forceRefresh bool) ([]store.Document, error) {
	return s.docs, nil
}

type captureQueue struct {
	jobs []jobs.Job
}

func (c *captureQueue) Enqueue(j jobs.Job) error {
	c.jobs = append(c.jobs, j)
	return nil
}

func activityDoc(id, classID string, age time.Duration) store.Document {
	return store.Document{
		Collection: "activities",
		ID:         id,
		Data: map[string]interface{}{
			"classId":   classID,
			"title":     id,
			"isVisible": true,
		},
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func newActivityService(repo *mockActivityRepo, runner *stubFeedRunner, queue *captureQueue) *ActivityService {
	pager := syncer.NewPager(runner, syncer.PagerConfig{
		Collection:  "activities",
		FilterField: "classId",
		PageSize:    10,
	})
	reconciler := syncer.NewReconciler(0, queue, nil, nil)
	return NewActivityService(repo, pager, reconciler, 50, 20, nil, nil)
}

func TestSubmitOptimisticOverlay(t *testing.T) {
	repo := &mockActivityRepo{}
	runner := &stubFeedRunner{docs: []store.Document{activityDoc("a1", "c1", time.Minute)}}
	svc := newActivityService(repo, runner, &captureQueue{})

	_, err := svc.LoadFeed(context.Background(), []string{"c1"}, false)
	require.NoError(t, err)

	require.NoError(t, svc.Submit(context.Background(), SubmitRequest{
		ActivityID: "a1", StudentID: "s1", Content: "minha resposta",
	}))
	require.Len(t, repo.created, 1)
	assert.Equal(t, models.SubmissionAwaitingGrading, repo.created[0].Status)

	feed, err := svc.LoadFeed(context.Background(), []string{"c1"}, false)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Len(t, feed[0].Submissions, 1, "overlay entry shows immediately")
	assert.Equal(t, "s1", feed[0].Submissions[0].StudentID)
}

func TestSubmitRevertsOnWriteFailure(t *testing.T) {
	repo := &mockActivityRepo{createErr: errors.New("write refused")}
	runner := &stubFeedRunner{docs: []store.Document{activityDoc("a1", "c1", time.Minute)}}
	svc := newActivityService(repo, runner, &captureQueue{})

	_, err := svc.LoadFeed(context.Background(), []string{"c1"}, false)
	require.NoError(t, err)

	err = svc.Submit(context.Background(), SubmitRequest{
		ActivityID: "a1", StudentID: "s1", Content: "minha resposta",
	})
	require.Error(t, err)

	feed, err := svc.LoadFeed(context.Background(), []string{"c1"}, false)
	require.NoError(t, err)
	assert.Empty(t, feed[0].Submissions, "failed submit must leave no overlay behind")
}

func TestGradeSchedulesResyncOnFailure(t *testing.T) {
	repo := &mockActivityRepo{gradeErr: errors.New("write refused")}
	queue := &captureQueue{}
	svc := newActivityService(repo, &stubFeedRunner{}, queue)

	err := svc.Grade(context.Background(), GradeRequest{
		ActivityID: "a1", StudentID: "s1", Grade: 8, Feedback: "Muito bem",
	})
	require.Error(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "submissions:a1_s1", queue.jobs[0].Key)
}

func TestGradeConflictPassesThrough(t *testing.T) {
	repo := &mockActivityRepo{gradeErr: appErrors.Clone(appErrors.ErrConflict, "submission already graded")}
	svc := newActivityService(repo, &stubFeedRunner{}, &captureQueue{})

	err := svc.Grade(context.Background(), GradeRequest{
		ActivityID: "a1", StudentID: "s1", Grade: 8,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeepDiveMergesIntoFeed(t *testing.T) {
	repo := &mockActivityRepo{deepDive: []store.Document{
		activityDoc("a1", "c1", time.Minute),
		activityDoc("a9", "c1", 9*time.Minute),
	}}
	runner := &stubFeedRunner{docs: []store.Document{activityDoc("a1", "c1", time.Minute)}}
	svc := newActivityService(repo, runner, &captureQueue{})

	_, err := svc.LoadFeed(context.Background(), []string{"c1"}, false)
	require.NoError(t, err)

	merged, err := svc.DeepDive(context.Background(), "c1", false)
	require.NoError(t, err)
	assert.Len(t, merged, 2, "window unions with the feed by id")
}

func TestSubmissionsDetailWindowCap(t *testing.T) {
	subs := make([]models.Submission, 30)
	for i := range subs {
		subs[i] = models.Submission{ID: string(rune('a' + i))}
	}
	repo := &mockActivityRepo{submissions: subs}
	svc := newActivityService(repo, &stubFeedRunner{}, &captureQueue{})

	got, err := svc.Submissions(context.Background(), "a1", false)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
