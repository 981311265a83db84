package repository

import (
	"context"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
)

// AchievementRepository reads the global rule set and mutates per-user
// gamification state. The state document is shared between devices, so all
// writes are merge-style or increments; full-document overwrites would lose
// concurrent updates.
type AchievementRepository struct {
	store store.Store
	exec  queryRunner
}

// NewAchievementRepository constructs the repository.
func NewAchievementRepository(st store.Store, exec queryRunner) *AchievementRepository {
	return &AchievementRepository{store: st, exec: exec}
}

// ListRules returns the admin-authored rule set, cache-first. Inactive
// rules are returned too; the engine skips them.
func (r *AchievementRepository) ListRules(ctx context.Context, forceRefresh bool) ([]models.AchievementRule, error) {
	q := store.Query{Collection: colAchievementRules, OrderBy: "createdAt"}
	docs, err := r.exec.Run(ctx, q, forceRefresh)
	if err != nil {
		return nil, err
	}
	rules := make([]models.AchievementRule, 0, len(docs))
	for _, d := range docs {
		rules = append(rules, models.AchievementRule{
			ID:        d.ID,
			Title:     store.StringField(d, "title"),
			Criterion: models.CriterionType(store.StringField(d, "criterion")),
			Target:    store.IntField(d, "target"),
			Active:    store.BoolField(d, "active"),
		})
	}
	return rules, nil
}

// GetState loads the user's achievement state from the network; a missing
// document decodes to the zero state.
func (r *AchievementRepository) GetState(ctx context.Context, userID string) (models.UserAchievementState, error) {
	q := store.Query{
		Collection: colUserAchievements,
		Filters:    []store.Filter{store.Eq("userId", userID)},
		Limit:      1,
	}
	docs, err := r.exec.Run(ctx, q, true)
	if err != nil {
		return models.UserAchievementState{}, err
	}
	state := models.UserAchievementState{UserID: userID, Unlocked: map[string]models.UnlockedAchievement{}}
	if len(docs) == 0 {
		state.Level = models.LevelForXP(0)
		return state, nil
	}

	d := docs[0]
	state.XP = store.IntField(d, "xp")
	state.Level = models.LevelForXP(state.XP)
	if raw, ok := d.Data["stats"]; ok {
		_ = store.DecodeInto(raw, &state.Stats)
	}
	if raw, ok := d.Data["unlocked"]; ok {
		_ = store.DecodeInto(raw, &state.Unlocked)
	}
	return state, nil
}

// AddXP grants xp and refreshes the derived level.
func (r *AchievementRepository) AddXP(ctx context.Context, userID string, xp, level int) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colUserAchievements, userID, map[string]interface{}{"userId": userID}),
		store.Increment(colUserAchievements, userID, "xp", float64(xp)),
		store.Merge(colUserAchievements, userID, map[string]interface{}{"level": level}),
	})
}

// IncrementStat bumps one stats counter by delta.
func (r *AchievementRepository) IncrementStat(ctx context.Context, userID, counter string, delta int) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colUserAchievements, userID, map[string]interface{}{"userId": userID}),
		store.Increment(colUserAchievements, userID, "stats."+counter, float64(delta)),
	})
}

// PersistUnlocks merges newly unlocked achievements into the unlocked map,
// one keyed entry per achievement so concurrent writers never clobber each
// other's unlocks.
func (r *AchievementRepository) PersistUnlocks(ctx context.Context, userID string, unlocks map[string]models.UnlockedAchievement) error {
	if len(unlocks) == 0 {
		return nil
	}
	ops := []store.WriteOp{
		store.Merge(colUserAchievements, userID, map[string]interface{}{"userId": userID}),
	}
	for id, unlock := range unlocks {
		ops = append(ops, store.Merge(colUserAchievements, userID, map[string]interface{}{
			"unlocked." + id: map[string]interface{}{
				"date": unlock.Date.Format(time.RFC3339),
				"seen": unlock.Seen,
			},
		}))
	}
	return r.store.BatchWrite(ctx, ops)
}

// MarkSeen flags one unlocked achievement's toast as shown.
func (r *AchievementRepository) MarkSeen(ctx context.Context, userID, achievementID string) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colUserAchievements, userID, map[string]interface{}{
			"unlocked." + achievementID + ".seen": true,
		}),
	})
}
