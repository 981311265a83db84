package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type moduleRepository interface {
	ListByClasses(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.CourseModule, error)
	GetProgress(ctx context.Context, userID, moduleID string) (models.ModuleProgress, error)
	UpsertProgress(ctx context.Context, progress models.ModuleProgress) error
}

// ModuleService lists study modules and records per-user completion, which
// feeds the modulesCompleted achievement counter.
type ModuleService struct {
	repo         moduleRepository
	reconciler   mutationRunner
	achievements *AchievementService
	logger       *zap.Logger
}

// NewModuleService constructs ModuleService.
func NewModuleService(repo moduleRepository, reconciler mutationRunner, achievements *AchievementService, logger *zap.Logger) *ModuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleService{repo: repo, reconciler: reconciler, achievements: achievements, logger: logger}
}

// List returns the visible modules of the user's classes, cache-first.
func (s *ModuleService) List(ctx context.Context, classIDs []string, forceRefresh bool) ([]models.CourseModule, error) {
	return s.repo.ListByClasses(ctx, classIDs, forceRefresh)
}

// Progress returns the user's completion state for one module.
func (s *ModuleService) Progress(ctx context.Context, userID, moduleID string) (models.ModuleProgress, error) {
	if userID == "" || moduleID == "" {
		return models.ModuleProgress{}, appErrors.Clone(appErrors.ErrValidation, "user id and module id are required")
	}
	return s.repo.GetProgress(ctx, userID, moduleID)
}

// Complete marks a module finished. Idempotent: a module already completed
// moves no counters, so re-opening a finished module cannot inflate the
// achievement stats.
func (s *ModuleService) Complete(ctx context.Context, userID, moduleID string) ([]Unlock, error) {
	if userID == "" || moduleID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id and module id are required")
	}

	progress, err := s.repo.GetProgress(ctx, userID, moduleID)
	if err != nil {
		return nil, err
	}
	if progress.Completed {
		return nil, nil
	}

	completedAt := time.Now().UTC()
	progress.Completed = true
	progress.CompletedAt = &completedAt
	err = s.reconciler.Do(ctx, syncer.Mutation{
		Name: "complete_module",
		Write: func(ctx context.Context) error {
			return s.repo.UpsertProgress(ctx, progress)
		},
		ResyncKey: "module_progress:" + userID + "_" + moduleID,
	})
	if err != nil {
		return nil, err
	}

	unlocked, err := s.achievements.RecordProgress(ctx, userID, "modulesCompleted", 1)
	if err != nil {
		return nil, err
	}
	s.logger.Info("module completed",
		zap.String("userId", userID), zap.String("moduleId", moduleID))
	return unlocked, nil
}
