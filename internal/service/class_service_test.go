package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type mockEnrollmentRepo struct {
	classes     map[string]*models.Class
	members     map[string][]string
	enrollments []models.Enrollment
	invites     map[string]bool
}

func (m *mockEnrollmentRepo) ListByUser(ctx context.Context, userID string, forceRefresh bool) ([]models.Enrollment, error) {
	return m.enrollments, nil
}

func (m *mockEnrollmentRepo) FindClassByCode(ctx context.Context, code string) (*models.Class, error) {
	for _, c := range m.classes {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found for code")
}

func (m *mockEnrollmentRepo) Join(ctx context.Context, classID, userID string, role models.UserRole) error {
	for _, member := range m.members[classID] {
		if member == userID {
			return appErrors.ErrAlreadyMember
		}
	}
	if m.members == nil {
		m.members = map[string][]string{}
	}
	m.members[classID] = append(m.members[classID], userID)
	m.enrollments = append(m.enrollments, models.Enrollment{ClassID: classID, UserID: userID, Role: role})
	return nil
}

func (m *mockEnrollmentRepo) CreateInvite(ctx context.Context, classID, studentID string) error {
	key := classID + "_" + studentID
	if m.invites[key] {
		return appErrors.ErrInvitePending
	}
	if m.invites == nil {
		m.invites = map[string]bool{}
	}
	m.invites[key] = true
	return nil
}

func TestJoinByCode(t *testing.T) {
	repo := &mockEnrollmentRepo{
		classes: map[string]*models.Class{
			"c1": {ID: "c1", Name: "História 7A", Code: "ABC123"},
		},
	}
	svc := NewClassService(repo, syncer.NewReconciler(0, nil, nil, nil), nil, nil)

	var notified []string
	svc.OnMembershipChange(func(ctx context.Context, classIDs []string) {
		notified = classIDs
	})

	class, err := svc.JoinByCode(context.Background(), JoinByCodeRequest{UserID: "u1", Code: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "c1", class.ID)
	assert.Equal(t, []string{"u1"}, repo.members["c1"])
	assert.Equal(t, []string{"c1"}, notified, "listeners see the refreshed class set")
}

func TestJoinByCodeAlreadyMember(t *testing.T) {
	repo := &mockEnrollmentRepo{
		classes: map[string]*models.Class{
			"c1": {ID: "c1", Code: "ABC123"},
		},
		members: map[string][]string{"c1": {"u1"}},
	}
	svc := NewClassService(repo, syncer.NewReconciler(0, nil, nil, nil), nil, nil)

	_, err := svc.JoinByCode(context.Background(), JoinByCodeRequest{UserID: "u1", Code: "ABC123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyMember.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.members["c1"], 1, "membership must not duplicate")
}

func TestJoinByCodeUnknownCode(t *testing.T) {
	svc := NewClassService(&mockEnrollmentRepo{}, syncer.NewReconciler(0, nil, nil, nil), nil, nil)

	_, err := svc.JoinByCode(context.Background(), JoinByCodeRequest{UserID: "u1", Code: "ZZZ999"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestJoinByCodeValidatesPayload(t *testing.T) {
	svc := NewClassService(&mockEnrollmentRepo{}, syncer.NewReconciler(0, nil, nil, nil), nil, nil)

	_, err := svc.JoinByCode(context.Background(), JoinByCodeRequest{UserID: "u1", Code: "too-long-code"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestInviteStudentPendingConflict(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := NewClassService(repo, syncer.NewReconciler(0, nil, nil, nil), nil, nil)

	require.NoError(t, svc.InviteStudent(context.Background(), InviteStudentRequest{ClassID: "c1", StudentID: "s1"}))

	err := svc.InviteStudent(context.Background(), InviteStudentRequest{ClassID: "c1", StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvitePending.Code, appErrors.FromError(err).Code)
}
