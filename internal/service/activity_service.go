package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/repository"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type activityRepository interface {
	DeepDive(ctx context.Context, classID string, limit int, forceRefresh bool) ([]store.Document, error)
	ListSubmissions(ctx context.Context, activityID string, forceRefresh bool) ([]models.Submission, error)
	CreateSubmission(ctx context.Context, sub models.Submission) error
	Grade(ctx context.Context, activityID, studentID string, grade int, feedback string) error
	UpdateFeedback(ctx context.Context, activityID, studentID, feedback string) error
	RebuildProjection(ctx context.Context, activityID string) error
}

type mutationRunner interface {
	Do(ctx context.Context, m syncer.Mutation) error
}

// SubmitRequest describes a student handing in an activity.
type SubmitRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

// GradeRequest describes a teacher grading a submission.
type GradeRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
	Grade      int    `json:"grade" validate:"min=0,max=10"`
	Feedback   string `json:"feedback"`
}

// ActivityService owns the paginated activity feed, the per-class deep-dive
// window and the submission lifecycle. Submissions apply optimistically: the
// local overlay updates first, the remote write follows, and failures either
// revert the overlay or schedule a resync.
type ActivityService struct {
	repo       activityRepository
	pager      *syncer.Pager
	reconciler mutationRunner
	validator  *validator.Validate
	logger     *zap.Logger

	deepDiveSize int
	detailSize   int

	mu      sync.Mutex
	overlay map[string]models.Submission
}

// NewActivityService constructs ActivityService. The pager must already be
// configured over the activities feed.
func NewActivityService(repo activityRepository, pager *syncer.Pager, reconciler mutationRunner, deepDiveSize, detailSize int, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deepDiveSize <= 0 {
		deepDiveSize = 50
	}
	if detailSize <= 0 {
		detailSize = 20
	}
	return &ActivityService{
		repo:         repo,
		pager:        pager,
		reconciler:   reconciler,
		validator:    validate,
		logger:       logger,
		deepDiveSize: deepDiveSize,
		detailSize:   detailSize,
		overlay:      make(map[string]models.Submission),
	}
}

// LoadFeed resets the feed to the given class set and loads the first page
// cache-first.
func (s *ActivityService) LoadFeed(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.Activity, error) {
	docs, err := s.pager.LoadFirstPage(ctx, classIDs, forceRefresh)
	if err != nil {
		return nil, err
	}
	return s.decorate(docs), nil
}

// LoadMore fetches the next page. A no-op while a load is in flight or the
// feed is exhausted.
func (s *ActivityService) LoadMore(ctx context.Context) ([]models.Activity, error) {
	docs, err := s.pager.LoadNextPage(ctx)
	if err != nil {
		return nil, err
	}
	return s.decorate(docs), nil
}

// HasMore reports whether another feed page may exist.
func (s *ActivityService) HasMore() bool {
	return s.pager.HasMore()
}

// DeepDive fetches a wide window of one class's activities and merges it
// into the feed without disturbing the pagination cursor.
func (s *ActivityService) DeepDive(ctx context.Context, classID string, forceRefresh bool) ([]models.Activity, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	window, err := s.repo.DeepDive(ctx, classID, s.deepDiveSize, forceRefresh)
	if err != nil {
		return nil, err
	}
	return s.decorate(s.pager.MergeWindow(window)), nil
}

// Submissions returns an activity's canonical submission records, capped to
// the detail-view window.
func (s *ActivityService) Submissions(ctx context.Context, activityID string, forceRefresh bool) ([]models.Submission, error) {
	subs, err := s.repo.ListSubmissions(ctx, activityID, forceRefresh)
	if err != nil {
		return nil, err
	}
	if len(subs) > s.detailSize {
		subs = subs[:s.detailSize]
	}
	return subs, nil
}

// Submit hands in an activity optimistically. The overlay entry shows the
// submission as awaiting grading immediately; a failed remote write reverts
// it so the student sees the hand-in did not stick.
func (s *ActivityService) Submit(ctx context.Context, req SubmitRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	sub := models.Submission{
		ID:          req.ActivityID + "_" + req.StudentID,
		ActivityID:  req.ActivityID,
		StudentID:   req.StudentID,
		Content:     req.Content,
		Status:      models.SubmissionAwaitingGrading,
		SubmittedAt: time.Now().UTC(),
	}

	return s.reconciler.Do(ctx, syncer.Mutation{
		Name:   "submit_activity",
		Apply:  func() { s.setOverlay(sub) },
		Write:  func(ctx context.Context) error { return s.repo.CreateSubmission(ctx, sub) },
		Revert: func() { s.dropOverlay(sub.ID) },
	})
}

// Grade transitions a submission to graded optimistically. There is no
// revert: the server-side state is re-fetched through a resync job instead,
// because a failed grade may still have partially landed remotely. The
// already-graded conflict passes through typed.
func (s *ActivityService) Grade(ctx context.Context, req GradeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	id := req.ActivityID + "_" + req.StudentID
	grade := req.Grade
	graded := models.Submission{
		ID:         id,
		ActivityID: req.ActivityID,
		StudentID:  req.StudentID,
		Status:     models.SubmissionGraded,
		Grade:      &grade,
		Feedback:   req.Feedback,
	}

	return s.reconciler.Do(ctx, syncer.Mutation{
		Name:  "grade_submission",
		Apply: func() { s.setOverlay(graded) },
		Write: func(ctx context.Context) error {
			return s.repo.Grade(ctx, req.ActivityID, req.StudentID, req.Grade, req.Feedback)
		},
		ResyncKey: "submissions:" + id,
	})
}

// UpdateFeedback edits the feedback of a graded submission.
func (s *ActivityService) UpdateFeedback(ctx context.Context, activityID, studentID, feedback string) error {
	if activityID == "" || studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "activity id and student id are required")
	}
	return s.repo.UpdateFeedback(ctx, activityID, studentID, feedback)
}

// RebuildProjection recomputes one activity's embedded submission array from
// the canonical records. Run from resync jobs and periodic repair.
func (s *ActivityService) RebuildProjection(ctx context.Context, activityID string) error {
	return s.repo.RebuildProjection(ctx, activityID)
}

// decorate maps feed documents to activities, replacing the current user's
// embedded submission with any pending overlay entry.
func (s *ActivityService) decorate(docs []store.Document) []models.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()

	activities := make([]models.Activity, 0, len(docs))
	for _, d := range docs {
		activity := repository.ActivityFromDoc(d)
		for id, sub := range s.overlay {
			if sub.ActivityID != activity.ID {
				continue
			}
			replaced := false
			for i := range activity.Submissions {
				if activity.Submissions[i].ID == id {
					activity.Submissions[i] = sub
					replaced = true
					break
				}
			}
			if !replaced {
				activity.Submissions = append(activity.Submissions, sub)
			}
		}
		activities = append(activities, activity)
	}
	return activities
}

func (s *ActivityService) setOverlay(sub models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay[sub.ID] = sub
}

func (s *ActivityService) dropOverlay(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlay, id)
}
