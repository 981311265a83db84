package repository

import (
	"context"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type queryRunner interface {
	Run(ctx context.Context, q store.Query, forceRefresh bool) ([]store.Document, error)
}

// EnrollmentRepository reads class memberships and runs the transactional
// join flow.
type EnrollmentRepository struct {
	store store.Store
	exec  queryRunner
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(st store.Store, exec queryRunner) *EnrollmentRepository {
	return &EnrollmentRepository{store: st, exec: exec}
}

// ListByUser returns the user's enrollments, cache-first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string, forceRefresh bool) ([]models.Enrollment, error) {
	q := store.Query{
		Collection: colEnrollments,
		Filters:    []store.Filter{store.Eq("userId", userID)},
		OrderBy:    "createdAt",
		Desc:       true,
	}
	docs, err := r.exec.Run(ctx, q, forceRefresh)
	if err != nil {
		return nil, err
	}
	enrollments := make([]models.Enrollment, 0, len(docs))
	for _, d := range docs {
		enrollments = append(enrollments, enrollmentFromDoc(d))
	}
	return enrollments, nil
}

// FindClassByCode resolves a join code. Always a network read: membership
// decisions must not rely on stale cache.
func (r *EnrollmentRepository) FindClassByCode(ctx context.Context, code string) (*models.Class, error) {
	q := store.Query{
		Collection: colClasses,
		Filters:    []store.Filter{store.Eq("code", code)},
		Limit:      1,
	}
	docs, err := r.exec.Run(ctx, q, true)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found for code")
	}
	class := classFromDoc(docs[0])
	return &class, nil
}

// Join adds the user to the class membership inside one atomic transaction:
// re-check membership, append the member, bump the denormalized counter and
// create the enrollment record. Two concurrent joins cannot both pass the
// membership check.
func (r *EnrollmentRepository) Join(ctx context.Context, classID, userID string, role models.UserRole) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(ctx, colClasses, classID)
		if err != nil {
			return err
		}
		for _, member := range store.StringsField(*doc, "memberIds") {
			if member == userID {
				return appErrors.ErrAlreadyMember
			}
		}

		members := append(store.StringsField(*doc, "memberIds"), userID)
		if err := tx.Merge(ctx, colClasses, classID, map[string]interface{}{"memberIds": members}); err != nil {
			return err
		}
		if err := tx.Increment(ctx, colClasses, classID, "studentCount", 1); err != nil {
			return err
		}

		now := time.Now().UTC()
		return tx.Set(ctx, colEnrollments, classID+"_"+userID, map[string]interface{}{
			"classId":   classID,
			"userId":    userID,
			"role":      string(role),
			"className": store.StringField(*doc, "name"),
			"joinedAt":  now.Format(time.RFC3339),
			"createdAt": now.Format(time.RFC3339),
		})
	})
}

// CreateInvite registers a pending invitation, failing with a typed error
// when one is already pending for the same student and class.
func (r *EnrollmentRepository) CreateInvite(ctx context.Context, classID, studentID string) error {
	inviteID := classID + "_" + studentID
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.Get(ctx, colInvites, inviteID)
		if err == nil {
			if store.StringField(*existing, "status") == string(models.InviteStatusPending) {
				return appErrors.ErrInvitePending
			}
		} else if appErrors.FromError(err).Code != appErrors.ErrNotFound.Code {
			return err
		}

		return tx.Set(ctx, colInvites, inviteID, map[string]interface{}{
			"classId":   classID,
			"studentId": studentID,
			"status":    string(models.InviteStatusPending),
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func enrollmentFromDoc(d store.Document) models.Enrollment {
	return models.Enrollment{
		ID:            d.ID,
		ClassID:       store.StringField(d, "classId"),
		UserID:        store.StringField(d, "userId"),
		Role:          models.UserRole(store.StringField(d, "role")),
		ClassName:     store.StringField(d, "className"),
		StudentCount:  store.IntField(d, "studentCount"),
		ActivityCount: store.IntField(d, "activityCount"),
		ModuleCount:   store.IntField(d, "moduleCount"),
		NoticeCount:   store.IntField(d, "noticeCount"),
		JoinedAt:      store.TimeField(d, "joinedAt"),
	}
}

func classFromDoc(d store.Document) models.Class {
	return models.Class{
		ID:           d.ID,
		Name:         store.StringField(d, "name"),
		Code:         store.StringField(d, "code"),
		TeacherID:    store.StringField(d, "teacherId"),
		MemberIDs:    store.StringsField(d, "memberIds"),
		StudentCount: store.IntField(d, "studentCount"),
		CreatedAt:    store.TimeField(d, "createdAt"),
	}
}
