package models

import "time"

// CriterionType selects which stats counter an achievement rule reads.
// Unknown types are ignored by the engine for forward compatibility.
type CriterionType string

const (
	CriterionQuizzes    CriterionType = "QUIZZES"
	CriterionModules    CriterionType = "MODULES"
	CriterionActivities CriterionType = "ACTIVITIES"
)

// AchievementRule is a global, admin-authored unlock criterion. Immutable
// from the client's perspective.
type AchievementRule struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Criterion CriterionType `json:"criterion"`
	Target    int           `json:"target"`
	Active    bool          `json:"active"`
}

// AchievementStats are the per-user counters the engine evaluates against.
type AchievementStats struct {
	QuizzesCompleted    int `json:"quizzesCompleted"`
	ModulesCompleted    int `json:"modulesCompleted"`
	ActivitiesCompleted int `json:"activitiesCompleted"`
	LoginStreak         int `json:"loginStreak"`
}

// Counter returns the stats value for a criterion, and false when the
// criterion is unknown.
func (s AchievementStats) Counter(c CriterionType) (int, bool) {
	switch c {
	case CriterionQuizzes:
		return s.QuizzesCompleted, true
	case CriterionModules:
		return s.ModulesCompleted, true
	case CriterionActivities:
		return s.ActivitiesCompleted, true
	default:
		return 0, false
	}
}

// UnlockedAchievement records when an achievement was earned and whether the
// unlock toast has been shown.
type UnlockedAchievement struct {
	Date time.Time `json:"date"`
	Seen bool      `json:"seen"`
}

// UserAchievementState is the per-user gamification document. XP is
// monotonic non-negative; once an id appears in Unlocked it is never removed
// or re-evaluated.
type UserAchievementState struct {
	UserID   string                         `json:"userId"`
	XP       int                            `json:"xp"`
	Level    int                            `json:"level"`
	Stats    AchievementStats               `json:"stats"`
	Unlocked map[string]UnlockedAchievement `json:"unlocked"`
}

// LevelForXP derives the level from accumulated xp.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/100 + 1
}
