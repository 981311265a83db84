package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type achievementRepository interface {
	ListRules(ctx context.Context, forceRefresh bool) ([]models.AchievementRule, error)
	GetState(ctx context.Context, userID string) (models.UserAchievementState, error)
	AddXP(ctx context.Context, userID string, xp, level int) error
	IncrementStat(ctx context.Context, userID, counter string, delta int) error
	PersistUnlocks(ctx context.Context, userID string, unlocks map[string]models.UnlockedAchievement) error
	MarkSeen(ctx context.Context, userID, achievementID string) error
}

// Unlock pairs a rule with the unlock record created for it, so callers can
// show a toast with the rule's title.
type Unlock struct {
	Rule   models.AchievementRule
	Record models.UnlockedAchievement
}

// AchievementService owns the gamification rule engine and the per-user
// state writes it triggers.
type AchievementService struct {
	repo   achievementRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewAchievementService constructs AchievementService.
func NewAchievementService(repo achievementRepository, logger *zap.Logger) *AchievementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AchievementService{repo: repo, now: time.Now, logger: logger}
}

// Evaluate runs the rule engine over a stats snapshot. It is a pure
// function: no reads, no writes, deterministic for a given input. A rule
// fires when it is active, has a positive target, reads a known counter and
// that counter has reached the target; already unlocked rules never fire
// again, so unlocks are monotonic even if counters were ever to regress.
func Evaluate(stats models.AchievementStats, rules []models.AchievementRule, unlocked map[string]models.UnlockedAchievement, now time.Time) []Unlock {
	var fired []Unlock
	for _, rule := range rules {
		if !rule.Active || rule.Target <= 0 {
			continue
		}
		if _, done := unlocked[rule.ID]; done {
			continue
		}
		value, known := stats.Counter(rule.Criterion)
		if !known || value < rule.Target {
			continue
		}
		fired = append(fired, Unlock{
			Rule:   rule,
			Record: models.UnlockedAchievement{Date: now, Seen: false},
		})
	}
	return fired
}

// Profile returns the user's current gamification state.
func (s *AchievementService) Profile(ctx context.Context, userID string) (models.UserAchievementState, error) {
	if userID == "" {
		return models.UserAchievementState{}, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	return s.repo.GetState(ctx, userID)
}

// Rules returns the rule set, cache-first.
func (s *AchievementService) Rules(ctx context.Context, forceRefresh bool) ([]models.AchievementRule, error) {
	return s.repo.ListRules(ctx, forceRefresh)
}

// AwardXP grants xp, recomputing the derived level from the resulting total.
func (s *AchievementService) AwardXP(ctx context.Context, userID string, xp int) (int, error) {
	if xp <= 0 {
		state, err := s.repo.GetState(ctx, userID)
		if err != nil {
			return 0, err
		}
		return state.Level, nil
	}
	state, err := s.repo.GetState(ctx, userID)
	if err != nil {
		return 0, err
	}
	level := models.LevelForXP(state.XP + xp)
	if err := s.repo.AddXP(ctx, userID, xp, level); err != nil {
		return 0, err
	}
	return level, nil
}

// RecordProgress bumps one stats counter and re-evaluates the rule engine
// against the updated snapshot, persisting any fresh unlocks. Persisting is
// merge-only per achievement id, so a concurrent evaluation on another
// device cannot clobber an unlock.
func (s *AchievementService) RecordProgress(ctx context.Context, userID, counter string, delta int) ([]Unlock, error) {
	if err := s.repo.IncrementStat(ctx, userID, counter, delta); err != nil {
		return nil, err
	}

	state, err := s.repo.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	rules, err := s.repo.ListRules(ctx, false)
	if err != nil {
		return nil, err
	}

	fired := Evaluate(state.Stats, rules, state.Unlocked, s.now().UTC())
	if len(fired) == 0 {
		return nil, nil
	}

	unlocks := make(map[string]models.UnlockedAchievement, len(fired))
	for _, u := range fired {
		unlocks[u.Rule.ID] = u.Record
	}
	if err := s.repo.PersistUnlocks(ctx, userID, unlocks); err != nil {
		return nil, err
	}
	s.logger.Info("achievements unlocked",
		zap.String("userId", userID), zap.Int("count", len(fired)))
	return fired, nil
}

// MarkToastSeen flags one unlock's toast as shown.
func (s *AchievementService) MarkToastSeen(ctx context.Context, userID, achievementID string) error {
	if userID == "" || achievementID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user id and achievement id are required")
	}
	return s.repo.MarkSeen(ctx, userID, achievementID)
}
