package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type enrollmentRepository interface {
	ListByUser(ctx context.Context, userID string, forceRefresh bool) ([]models.Enrollment, error)
	FindClassByCode(ctx context.Context, code string) (*models.Class, error)
	Join(ctx context.Context, classID, userID string, role models.UserRole) error
	CreateInvite(ctx context.Context, classID, studentID string) error
}

// JoinByCodeRequest describes a join-by-code attempt.
type JoinByCodeRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required,alphanum,len=6"`
}

// InviteStudentRequest describes a teacher inviting a student.
type InviteStudentRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// MembershipListener is notified with the fresh class-id set after a
// membership change, so dependent feeds and streams can rebind.
type MembershipListener func(ctx context.Context, classIDs []string)

// ClassService orchestrates class membership: joining by code, invitations
// and the enrollment list the rest of the client hangs off.
type ClassService struct {
	repo       enrollmentRepository
	reconciler mutationRunner
	validator  *validator.Validate
	logger     *zap.Logger
	listeners  []MembershipListener
}

// NewClassService constructs ClassService.
func NewClassService(repo enrollmentRepository, reconciler mutationRunner, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, reconciler: reconciler, validator: validate, logger: logger}
}

// OnMembershipChange registers a listener invoked after every successful
// join. Registration is not synchronized; wire listeners before use.
func (s *ClassService) OnMembershipChange(fn MembershipListener) {
	s.listeners = append(s.listeners, fn)
}

// Enrollments returns the user's enrollments, cache-first.
func (s *ClassService) Enrollments(ctx context.Context, userID string, forceRefresh bool) ([]models.Enrollment, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID, forceRefresh)
}

// ClassIDs returns the ids of the user's classes, cache-first.
func (s *ClassService) ClassIDs(ctx context.Context, userID string, forceRefresh bool) ([]string, error) {
	enrollments, err := s.Enrollments(ctx, userID, forceRefresh)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ClassID)
	}
	return ids, nil
}

// JoinByCode resolves the join code and runs the transactional join. The
// membership re-check happens inside the transaction, so a stale local view
// cannot produce a duplicate membership. Listeners are notified with the
// refreshed class-id set on success.
func (s *ClassService) JoinByCode(ctx context.Context, req JoinByCodeRequest) (*models.Class, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}

	class, err := s.repo.FindClassByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	err = s.reconciler.Do(ctx, syncer.Mutation{
		Name: "join_class",
		Write: func(ctx context.Context) error {
			return s.repo.Join(ctx, class.ID, req.UserID, models.RoleStudent)
		},
		ResyncKey: "enrollments:" + req.UserID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("joined class",
		zap.String("classId", class.ID), zap.String("userId", req.UserID))

	if ids, listErr := s.ClassIDs(ctx, req.UserID, true); listErr == nil {
		for _, fn := range s.listeners {
			fn(ctx, ids)
		}
	} else {
		s.logger.Warn("membership refresh after join failed", zap.Error(listErr))
	}
	return class, nil
}

// InviteStudent registers a pending invitation. A second invite while one is
// pending surfaces the typed conflict unchanged.
func (s *ClassService) InviteStudent(ctx context.Context, req InviteStudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invite payload")
	}
	return s.repo.CreateInvite(ctx, req.ClassID, req.StudentID)
}
