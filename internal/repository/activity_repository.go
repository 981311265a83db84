package repository

import (
	"context"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

// ActivityRepository persists activities and their canonical per-student
// submission records. The embedded submissions array on an activity is a
// derived projection of the canonical records, rebuildable at any time.
type ActivityRepository struct {
	store store.Store
	exec  queryRunner
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(st store.Store, exec queryRunner) *ActivityRepository {
	return &ActivityRepository{store: st, exec: exec}
}

// FeedQuery is the base query the activity pager walks.
func FeedQuery() (collection, filterField string, extra []store.Filter) {
	return colActivities, "classId", []store.Filter{store.Eq("isVisible", true)}
}

// DeepDive fetches a larger window of one class's activities for the class
// detail view.
func (r *ActivityRepository) DeepDive(ctx context.Context, classID string, limit int, forceRefresh bool) ([]store.Document, error) {
	q := store.Query{
		Collection: colActivities,
		Filters: []store.Filter{
			store.Eq("classId", classID),
			store.Eq("isVisible", true),
		},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   limit,
	}
	return r.exec.Run(ctx, q, forceRefresh)
}

// ListSubmissions returns the canonical submission records of an activity.
func (r *ActivityRepository) ListSubmissions(ctx context.Context, activityID string, forceRefresh bool) ([]models.Submission, error) {
	q := store.Query{
		Collection: colSubmissions,
		Filters:    []store.Filter{store.Eq("activityId", activityID)},
		OrderBy:    "createdAt",
	}
	docs, err := r.exec.Run(ctx, q, forceRefresh)
	if err != nil {
		return nil, err
	}
	subs := make([]models.Submission, 0, len(docs))
	for _, d := range docs {
		subs = append(subs, submissionFromDoc(d))
	}
	return subs, nil
}

// CreateSubmission writes the canonical record and bumps the pending
// counter in one atomic batch.
func (r *ActivityRepository) CreateSubmission(ctx context.Context, sub models.Submission) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Set(colSubmissions, submissionID(sub.ActivityID, sub.StudentID), map[string]interface{}{
			"activityId":  sub.ActivityID,
			"studentId":   sub.StudentID,
			"content":     sub.Content,
			"status":      string(sub.Status),
			"submittedAt": sub.SubmittedAt.Format(time.RFC3339),
			"createdAt":   sub.SubmittedAt.Format(time.RFC3339),
		}),
		store.Increment(colActivities, sub.ActivityID, "pendingSubmissionCount", 1),
	})
}

// Grade transitions a submission to graded and decrements the activity's
// pending counter, atomically. Grading an already graded submission is a
// conflict; only feedback edits remain legal after the transition.
func (r *ActivityRepository) Grade(ctx context.Context, activityID, studentID string, grade int, feedback string) error {
	id := submissionID(activityID, studentID)
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(ctx, colSubmissions, id)
		if err != nil {
			return err
		}
		if store.StringField(*doc, "status") == string(models.SubmissionGraded) {
			return appErrors.Clone(appErrors.ErrConflict, "submission already graded")
		}

		if err := tx.Merge(ctx, colSubmissions, id, map[string]interface{}{
			"status":   string(models.SubmissionGraded),
			"grade":    grade,
			"feedback": feedback,
			"gradedAt": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
		return tx.Increment(ctx, colActivities, activityID, "pendingSubmissionCount", -1)
	})
}

// UpdateFeedback edits the feedback of a graded submission.
func (r *ActivityRepository) UpdateFeedback(ctx context.Context, activityID, studentID, feedback string) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colSubmissions, submissionID(activityID, studentID), map[string]interface{}{
			"feedback": feedback,
		}),
	})
}

// RebuildProjection recomputes the embedded submissions array and pending
// counter of an activity from the canonical records. The projection is
// display-only; the canonical per-student record stays the source of truth.
func (r *ActivityRepository) RebuildProjection(ctx context.Context, activityID string) error {
	subs, err := r.ListSubmissions(ctx, activityID, true)
	if err != nil {
		return err
	}
	pending := 0
	embedded := make([]map[string]interface{}, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == models.SubmissionAwaitingGrading {
			pending++
		}
		entry := map[string]interface{}{
			"id":          sub.ID,
			"studentId":   sub.StudentID,
			"content":     sub.Content,
			"status":      string(sub.Status),
			"feedback":    sub.Feedback,
			"submittedAt": sub.SubmittedAt.Format(time.RFC3339),
		}
		if sub.Grade != nil {
			entry["grade"] = *sub.Grade
		}
		embedded = append(embedded, entry)
	}
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colActivities, activityID, map[string]interface{}{
			"submissions":            embedded,
			"pendingSubmissionCount": pending,
		}),
	})
}

func submissionID(activityID, studentID string) string {
	return activityID + "_" + studentID
}

// ActivityFromDoc decodes an activity document, defaulting malformed fields
// rather than failing the feed.
func ActivityFromDoc(d store.Document) models.Activity {
	activity := models.Activity{
		ID:                     d.ID,
		ClassID:                store.StringField(d, "classId"),
		CreatorID:              store.StringField(d, "creatorId"),
		Title:                  store.StringField(d, "title"),
		Materia:                store.StringField(d, "materia"),
		Unidade:                store.StringField(d, "unidade"),
		Points:                 store.IntField(d, "points"),
		IsVisible:              store.BoolField(d, "isVisible"),
		PendingSubmissionCount: store.IntField(d, "pendingSubmissionCount"),
		CreatedAt:              store.TimeField(d, "createdAt"),
	}
	if raw, ok := d.Data["submissions"]; ok {
		_ = store.DecodeInto(raw, &activity.Submissions)
	}
	return activity
}

func submissionFromDoc(d store.Document) models.Submission {
	sub := models.Submission{
		ID:          d.ID,
		ActivityID:  store.StringField(d, "activityId"),
		StudentID:   store.StringField(d, "studentId"),
		Content:     store.StringField(d, "content"),
		Status:      models.SubmissionStatus(store.StringField(d, "status")),
		Feedback:    store.StringField(d, "feedback"),
		SubmittedAt: store.TimeField(d, "submittedAt"),
		GradedAt:    store.OptionalTimeField(d, "gradedAt"),
	}
	if _, ok := d.Data["grade"]; ok {
		grade := store.IntField(d, "grade")
		sub.Grade = &grade
	}
	return sub
}
