package repository

import (
	"context"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
)

// ModuleRepository reads study modules and mutates per-user completion
// progress.
type ModuleRepository struct {
	store store.Store
	exec  queryRunner
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(st store.Store, exec queryRunner) *ModuleRepository {
	return &ModuleRepository{store: st, exec: exec}
}

// ListByClasses returns visible modules for the given classes, cache-first.
func (r *ModuleRepository) ListByClasses(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.CourseModule, error) {
	var modules []models.CourseModule
	for _, chunk := range chunkStrings(classIDs, store.MaxInValues) {
		q := store.Query{
			Collection: colModules,
			Filters: []store.Filter{
				store.In("classId", chunk),
				store.Eq("isVisible", true),
			},
			OrderBy: "createdAt",
		}
		docs, err := r.exec.Run(ctx, q, forceRefresh)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			modules = append(modules, models.CourseModule{
				ID:        d.ID,
				ClassID:   store.StringField(d, "classId"),
				Title:     store.StringField(d, "title"),
				Unidade:   store.StringField(d, "unidade"),
				Position:  store.IntField(d, "position"),
				IsVisible: store.BoolField(d, "isVisible"),
				CreatedAt: store.TimeField(d, "createdAt"),
			})
		}
	}
	return modules, nil
}

// GetProgress loads a user's completion state for one module.
func (r *ModuleRepository) GetProgress(ctx context.Context, userID, moduleID string) (models.ModuleProgress, error) {
	q := store.Query{
		Collection: colModuleProgress,
		Filters: []store.Filter{
			store.Eq("userId", userID),
			store.Eq("moduleId", moduleID),
		},
		Limit: 1,
	}
	docs, err := r.exec.Run(ctx, q, true)
	if err != nil {
		return models.ModuleProgress{}, err
	}
	progress := models.ModuleProgress{UserID: userID, ModuleID: moduleID}
	if len(docs) == 0 {
		return progress, nil
	}
	d := docs[0]
	progress.Completed = store.BoolField(d, "completed")
	progress.CompletedAt = store.OptionalTimeField(d, "completedAt")
	return progress, nil
}

// UpsertProgress records completion state for one module.
func (r *ModuleRepository) UpsertProgress(ctx context.Context, progress models.ModuleProgress) error {
	data := map[string]interface{}{
		"userId":    progress.UserID,
		"moduleId":  progress.ModuleID,
		"completed": progress.Completed,
	}
	if progress.Completed {
		completedAt := time.Now().UTC()
		if progress.CompletedAt != nil {
			completedAt = *progress.CompletedAt
		}
		data["completedAt"] = completedAt.Format(time.RFC3339)
	}
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colModuleProgress, progress.UserID+"_"+progress.ModuleID, data),
	})
}
