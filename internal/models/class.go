package models

import "time"

// UserRole discriminates the two client roles.
type UserRole string

const (
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Class is a course room owned by a teacher. MemberIDs is the authoritative
// membership set; StudentCount is a denormalized approximation kept for
// display only.
type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	TeacherID    string    `json:"teacherId"`
	MemberIDs    []string  `json:"memberIds"`
	StudentCount int       `json:"studentCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// InviteStatus tracks the lifecycle of a class invitation.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
	InviteStatusDeclined InviteStatus = "DECLINED"
)

// Invite is a pending request for a student to join a class.
type Invite struct {
	ID        string       `json:"id"`
	ClassID   string       `json:"classId"`
	StudentID string       `json:"studentId"`
	Status    InviteStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}
