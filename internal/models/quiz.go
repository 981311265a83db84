package models

import "time"

// Quiz is a self-graded questionnaire attached to a class.
type Quiz struct {
	ID            string    `json:"id"`
	ClassID       string    `json:"classId"`
	Title         string    `json:"title"`
	Materia       string    `json:"materia"`
	Unidade       string    `json:"unidade"`
	QuestionCount int       `json:"questionCount"`
	IsVisible     bool      `json:"isVisible"`
	CreatedAt     time.Time `json:"createdAt"`
}

// QuizProgress tracks a user's attempts on one quiz. XP is only granted on
// the first attempt; later attempts update Attempts and BestScore only.
type QuizProgress struct {
	UserID    string    `json:"userId"`
	QuizID    string    `json:"quizId"`
	Attempts  int       `json:"attempts"`
	BestScore int       `json:"bestScore"`
	UpdatedAt time.Time `json:"updatedAt"`
}
