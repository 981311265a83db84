package models

import "time"

// CourseModule is a unit of study content within a class.
type CourseModule struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"classId"`
	Title     string    `json:"title"`
	Unidade   string    `json:"unidade"`
	Position  int       `json:"position"`
	IsVisible bool      `json:"isVisible"`
	CreatedAt time.Time `json:"createdAt"`
}

// ModuleProgress is a user's completion state for one module.
type ModuleProgress struct {
	UserID      string     `json:"userId"`
	ModuleID    string     `json:"moduleId"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
