package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/repository"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/service"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store/pgstore"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/cache"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/config"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/database"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/jobs"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/logger"
)

// App is the composition root of the synchronization layer: one store
// adapter, one cache-first executor, the domain services on top and the
// background resync queue tying optimistic failures back to server state.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.SyncMetrics

	Classes       *service.ClassService
	Activities    *service.ActivityService
	Notifications *service.NotificationService
	Quizzes       *service.QuizService
	Modules       *service.ModuleService
	Achievements  *service.AchievementService

	db       *sqlx.DB
	redis    *redis.Client
	store    *pgstore.Store
	docCache *repository.CacheRepository
	queue    *jobs.Queue
	activity *repository.ActivityRepository
	started  bool
}

// New wires the full dependency graph. Nothing starts running until Start.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, cache tier disabled", zap.Error(err))
		redisClient = nil
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var docCache *repository.CacheRepository
	if redisClient != nil {
		docCache = repository.NewCacheRepository(redisClient, cfg.Store.CacheTTL, log)
	}

	var st *pgstore.Store
	if docCache != nil {
		st, err = pgstore.New(db, database.DSN(cfg.Database), cfg.Store, docCache, log)
	} else {
		st, err = pgstore.New(db, database.DSN(cfg.Database), cfg.Store, nil, log)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build store: %w", err)
	}

	var metrics *service.SyncMetrics
	if cfg.Metrics.Enabled {
		metrics = service.NewSyncMetrics()
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		db:       db,
		redis:    redisClient,
		store:    st,
		docCache: docCache,
	}

	a.queue = jobs.NewQueue("resync", a.handleResync, jobs.QueueConfig{
		Workers:    cfg.Sync.ResyncWorkers,
		MaxRetries: cfg.Sync.ResyncRetries,
		RetryDelay: cfg.Sync.ResyncRetryDelay,
		Logger:     log,
	})

	executor := syncer.NewExecutor(st, cfg.Sync.QueryTimeout, metrics, log)
	reconciler := syncer.NewReconciler(cfg.Sync.QueryTimeout, a.queue, metrics, log)
	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(st, executor)
	activityRepo := repository.NewActivityRepository(st, executor)
	notificationRepo := repository.NewNotificationRepository(st, executor)
	achievementRepo := repository.NewAchievementRepository(st, executor)
	quizRepo := repository.NewQuizRepository(st, executor)
	moduleRepo := repository.NewModuleRepository(st, executor)
	a.activity = activityRepo

	feedCollection, feedField, feedFilters := repository.FeedQuery()
	pager := syncer.NewPager(executor, syncer.PagerConfig{
		Collection:   feedCollection,
		FilterField:  feedField,
		ExtraFilters: feedFilters,
		PageSize:     cfg.Sync.ActivityPageSize,
		Metrics:      metrics,
		Logger:       log,
	})

	a.Achievements = service.NewAchievementService(achievementRepo, log)
	a.Classes = service.NewClassService(enrollmentRepo, reconciler, validate, log)
	a.Activities = service.NewActivityService(activityRepo, pager, reconciler, cfg.Sync.DeepDivePageSize, cfg.Sync.DeepDiveDetailSize, validate, log)
	a.Notifications = service.NewNotificationService(st, notificationRepo, reconciler, metrics, cfg.Sync.PrivateNotifyLimit, cfg.Sync.BroadcastClassLimit, cfg.Sync.PrivateNotifyWindow, log)
	a.Quizzes = service.NewQuizService(quizRepo, a.Achievements, validate, log)
	a.Modules = service.NewModuleService(moduleRepo, reconciler, a.Achievements, log)

	// A join changes which classes feed the activity pager and the
	// broadcast stream; both rebind off the fresh membership set.
	a.Classes.OnMembershipChange(func(ctx context.Context, classIDs []string) {
		if _, err := a.Activities.LoadFeed(ctx, classIDs, true); err != nil {
			log.Warn("feed reload after membership change failed", zap.Error(err))
		}
		if err := a.Notifications.Rebind(ctx, classIDs); err != nil {
			log.Warn("broadcast rebind after membership change failed", zap.Error(err))
		}
	})

	return a, nil
}

// Start brings the layer online for one user: the resync workers, the live
// notification streams and the first page of the activity feed.
func (a *App) Start(ctx context.Context, userID string) error {
	a.queue.Start(ctx)
	a.started = true

	classIDs, err := a.Classes.ClassIDs(ctx, userID, false)
	if err != nil {
		return err
	}
	if err := a.Notifications.Start(ctx, userID, classIDs); err != nil {
		return err
	}
	if _, err := a.Activities.LoadFeed(ctx, classIDs, false); err != nil {
		return err
	}
	return nil
}

// Close tears everything down in dependency order.
func (a *App) Close() error {
	if a.Notifications != nil {
		a.Notifications.Close()
	}
	if a.started {
		a.queue.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	var err error
	if a.db != nil {
		err = a.db.Close()
	}
	_ = a.Logger.Sync()
	return err
}

// handleResync processes one queued resync: drop the collection's cached
// snapshots so the next read refetches, and for submissions rebuild the
// activity's embedded projection from the canonical records.
func (a *App) handleResync(ctx context.Context, job jobs.Job) error {
	collection, rest, found := strings.Cut(job.Key, ":")
	if !found {
		a.Logger.Warn("resync job with malformed key", zap.String("key", job.Key))
		return nil
	}

	if a.docCache != nil {
		if err := a.docCache.InvalidateCollection(ctx, collection); err != nil {
			return err
		}
	}

	if collection == "submissions" {
		if activityID, _, ok := strings.Cut(rest, "_"); ok {
			return a.activity.RebuildProjection(ctx, activityID)
		}
	}
	return nil
}
