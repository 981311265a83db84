package models

import "time"

// SubmissionStatus is the two-state submission lifecycle.
type SubmissionStatus string

const (
	SubmissionAwaitingGrading SubmissionStatus = "AWAITING_GRADING"
	SubmissionGraded          SubmissionStatus = "GRADED"
)

// Submission is the canonical per-student record for an activity. The
// embedded array on Activity is a derived projection of these records.
type Submission struct {
	ID          string           `json:"id"`
	ActivityID  string           `json:"activityId"`
	StudentID   string           `json:"studentId"`
	Content     string           `json:"content"`
	Status      SubmissionStatus `json:"status"`
	Grade       *int             `json:"grade,omitempty"`
	Feedback    string           `json:"feedback,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt"`
	GradedAt    *time.Time       `json:"gradedAt,omitempty"`
}

// Activity is a graded task posted to a class.
type Activity struct {
	ID                     string       `json:"id"`
	ClassID                string       `json:"classId"`
	CreatorID              string       `json:"creatorId"`
	Title                  string       `json:"title"`
	Materia                string       `json:"materia"`
	Unidade                string       `json:"unidade"`
	Points                 int          `json:"points"`
	IsVisible              bool         `json:"isVisible"`
	Submissions            []Submission `json:"submissions"`
	PendingSubmissionCount int          `json:"pendingSubmissionCount"`
	CreatedAt              time.Time    `json:"createdAt"`
}

// SubmissionFor returns the embedded submission for the given student.
func (a Activity) SubmissionFor(studentID string) *Submission {
	for i := range a.Submissions {
		if a.Submissions[i].StudentID == studentID {
			return &a.Submissions[i]
		}
	}
	return nil
}
