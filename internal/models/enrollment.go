package models

import "time"

// Enrollment captures a user's membership in a class, denormalized with
// approximate counters. Counters are eventually consistent and must only be
// used for display, never for correctness-sensitive logic.
type Enrollment struct {
	ID            string    `json:"id"`
	ClassID       string    `json:"classId"`
	UserID        string    `json:"userId"`
	Role          UserRole  `json:"role"`
	ClassName     string    `json:"className"`
	StudentCount  int       `json:"studentCount"`
	ActivityCount int       `json:"activityCount"`
	ModuleCount   int       `json:"moduleCount"`
	NoticeCount   int       `json:"noticeCount"`
	JoinedAt      time.Time `json:"joinedAt"`
}
