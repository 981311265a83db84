package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/repository"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/syncer"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

type notificationRepository interface {
	MarkPrivateRead(ctx context.Context, id string) error
	MarkManyPrivateRead(ctx context.Context, ids []string) error
	AddReceipts(ctx context.Context, userID string, ids []string) error
	PostNotice(ctx context.Context, notice models.Notification) error
	RemoveNotice(ctx context.Context, classID, noticeID string) error
}

const (
	streamPrivate   = "private"
	streamBroadcast = "broadcast"
	streamReceipts  = "receipts"
)

// NotificationService merges the private and broadcast notification streams
// into one live view. Three subscriptions feed a pure merger; every snapshot
// from any of them recomputes the merged view and notifies the registered
// observer.
type NotificationService struct {
	repo       notificationRepository
	reconciler mutationRunner
	watcher    *syncer.Watcher
	merger     *syncer.Merger
	now        func() time.Time
	logger     *zap.Logger

	privateLimit  int
	classLimit    int
	privateWindow time.Duration

	mu       sync.Mutex
	userID   string
	onChange func(items []models.Notification, unread int)
}

// NewNotificationService constructs the service and its stream watcher.
func NewNotificationService(subscriber store.Subscriber, repo notificationRepository, reconciler mutationRunner, metrics *SyncMetrics, privateLimit, classLimit int, privateWindow time.Duration, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if privateLimit <= 0 {
		privateLimit = 20
	}
	if classLimit <= 0 {
		classLimit = 10
	}
	if privateWindow <= 0 {
		privateWindow = 7 * 24 * time.Hour
	}
	s := &NotificationService{
		repo:          repo,
		reconciler:    reconciler,
		merger:        syncer.NewMerger(),
		now:           time.Now,
		logger:        logger,
		privateLimit:  privateLimit,
		classLimit:    classLimit,
		privateWindow: privateWindow,
	}
	s.watcher = syncer.NewWatcher(subscriber, s.dispatch, metrics, logger)
	return s
}

// SetOnChange registers the observer invoked with every recomputed view.
// Wire before Start.
func (s *NotificationService) SetOnChange(fn func(items []models.Notification, unread int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Start binds the three live streams for the user. The broadcast stream
// covers at most the first classLimit classes; members of more classes see
// broadcast notices for the overflow classes only after a rebind that
// includes them.
func (s *NotificationService) Start(ctx context.Context, userID string, classIDs []string) error {
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	if err := s.watcher.Bind(ctx, streamPrivate, repository.PrivateQuery(userID, s.privateLimit)); err != nil {
		return err
	}
	if err := s.watcher.Bind(ctx, streamReceipts, repository.ReceiptQuery(userID)); err != nil {
		return err
	}
	return s.bindBroadcast(ctx, classIDs)
}

// Rebind points the broadcast stream at a fresh class set, e.g. after the
// user joins a class. Private and receipt streams are unaffected.
func (s *NotificationService) Rebind(ctx context.Context, classIDs []string) error {
	return s.bindBroadcast(ctx, classIDs)
}

func (s *NotificationService) bindBroadcast(ctx context.Context, classIDs []string) error {
	if len(classIDs) == 0 {
		s.watcher.Unbind(streamBroadcast)
		s.merger.SetBroadcast(nil)
		s.notify()
		return nil
	}
	if len(classIDs) > s.classLimit {
		s.logger.Warn("broadcast stream capped",
			zap.Int("classes", len(classIDs)), zap.Int("limit", s.classLimit))
		classIDs = classIDs[:s.classLimit]
	}
	return s.watcher.Bind(ctx, streamBroadcast, repository.BroadcastQuery(classIDs))
}

// Close tears down all live streams.
func (s *NotificationService) Close() {
	s.watcher.Close()
}

// View returns the merged, visibility-filtered notification list, newest
// first.
func (s *NotificationService) View() []models.Notification {
	now := s.now()
	merged := s.merger.View()
	visible := merged[:0]
	for _, n := range merged {
		if n.Visible(now, s.privateWindow) {
			visible = append(visible, n)
		}
	}
	return visible
}

// UnreadCount counts unread items in the visible view.
func (s *NotificationService) UnreadCount() int {
	count := 0
	for _, n := range s.View() {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one notification as read, dispatching on origin: private
// items flip their own read flag, broadcast notices are recorded in the
// per-user receipt set. Both apply optimistically; a failed write schedules
// a resync and the live streams reconcile the view.
func (s *NotificationService) MarkRead(ctx context.Context, n models.Notification) error {
	userID := s.currentUser()
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification streams not started")
	}

	if n.Origin == models.OriginBroadcast {
		return s.reconciler.Do(ctx, syncer.Mutation{
			Name:  "mark_notice_read",
			Apply: func() { s.merger.AddReceipt(n.ID); s.notify() },
			Write: func(ctx context.Context) error {
				return s.repo.AddReceipts(ctx, userID, []string{n.ID})
			},
			ResyncKey: "read_receipts:" + userID,
		})
	}
	return s.reconciler.Do(ctx, syncer.Mutation{
		Name:  "mark_notification_read",
		Apply: func() { s.merger.DropPrivate(n.ID); s.notify() },
		Write: func(ctx context.Context) error {
			return s.repo.MarkPrivateRead(ctx, n.ID)
		},
		ResyncKey: "notifications:" + userID,
	})
}

// MarkAllRead marks every unread visible item as read: one batch for the
// private flags, one receipt union for the broadcast ids.
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	userID := s.currentUser()
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification streams not started")
	}

	var privateIDs, broadcastIDs []string
	for _, n := range s.View() {
		if n.Read {
			continue
		}
		if n.Origin == models.OriginBroadcast {
			broadcastIDs = append(broadcastIDs, n.ID)
		} else {
			privateIDs = append(privateIDs, n.ID)
		}
	}
	if len(privateIDs) == 0 && len(broadcastIDs) == 0 {
		return nil
	}

	return s.reconciler.Do(ctx, syncer.Mutation{
		Name: "mark_all_read",
		Apply: func() {
			for _, id := range privateIDs {
				s.merger.DropPrivate(id)
			}
			for _, id := range broadcastIDs {
				s.merger.AddReceipt(id)
			}
			s.notify()
		},
		Write: func(ctx context.Context) error {
			if err := s.repo.MarkManyPrivateRead(ctx, privateIDs); err != nil {
				return err
			}
			return s.repo.AddReceipts(ctx, userID, broadcastIDs)
		},
		ResyncKey: "notifications:" + userID,
	})
}

// PostNotice publishes a broadcast notice to a class. Teacher-side only.
func (s *NotificationService) PostNotice(ctx context.Context, classID, title, summary string, expiresAt time.Time) error {
	if classID == "" || title == "" {
		return appErrors.Clone(appErrors.ErrValidation, "class id and title are required")
	}
	notice := models.Notification{
		ID:        uuid.NewString(),
		Origin:    models.OriginBroadcast,
		ClassID:   classID,
		Title:     title,
		Summary:   summary,
		Timestamp: s.now().UTC(),
		ExpiresAt: &expiresAt,
	}
	return s.reconciler.Do(ctx, syncer.Mutation{
		Name: "post_notice",
		Write: func(ctx context.Context) error {
			return s.repo.PostNotice(ctx, notice)
		},
		ResyncKey: "notices:" + classID,
	})
}

// RemoveNotice retracts a posted notice. The broadcast stream drops it from
// every member's view on the next snapshot.
func (s *NotificationService) RemoveNotice(ctx context.Context, classID, noticeID string) error {
	if classID == "" || noticeID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "class id and notice id are required")
	}
	return s.reconciler.Do(ctx, syncer.Mutation{
		Name: "remove_notice",
		Write: func(ctx context.Context) error {
			return s.repo.RemoveNotice(ctx, classID, noticeID)
		},
		ResyncKey: "notices:" + classID,
	})
}

// dispatch routes a stream snapshot to the matching merger input. The
// streams update independently and in any relative order; the merged view
// stays consistent because it is recomputed from whole snapshots.
func (s *NotificationService) dispatch(stream string, docs []store.Document) {
	switch stream {
	case streamPrivate:
		items := make([]models.Notification, 0, len(docs))
		for _, d := range docs {
			items = append(items, repository.NotificationFromDoc(d, models.OriginPrivate))
		}
		s.merger.SetPrivate(items)
	case streamBroadcast:
		items := make([]models.Notification, 0, len(docs))
		for _, d := range docs {
			items = append(items, repository.NotificationFromDoc(d, models.OriginBroadcast))
		}
		s.merger.SetBroadcast(items)
	case streamReceipts:
		s.merger.SetReceipts(repository.ReceiptIDsFromDocs(docs))
	default:
		s.logger.Warn("snapshot for unknown stream", zap.String("stream", stream))
		return
	}
	s.notify()
}

func (s *NotificationService) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(s.View(), s.UnreadCount())
	}
}

func (s *NotificationService) currentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}
