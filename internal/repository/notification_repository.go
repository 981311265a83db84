package repository

import (
	"context"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

// NotificationRepository persists both notification variants and the
// per-user read receipts. Broadcast notices are shared across all class
// members and are never mutated to record a read; that is what receipts are
// for.
type NotificationRepository struct {
	store store.Store
	exec  queryRunner
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(st store.Store, exec queryRunner) *NotificationRepository {
	return &NotificationRepository{store: st, exec: exec}
}

// PrivateQuery is the live query over the user's unread mailbox.
func PrivateQuery(userID string, limit int) store.Query {
	return store.Query{
		Collection: colNotifications,
		Filters: []store.Filter{
			store.Eq("userId", userID),
			store.Eq("read", false),
		},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   limit,
	}
}

// BroadcastQuery is the live query over class notices. ids must already be
// capped to the store's multi-value filter limit.
func BroadcastQuery(classIDs []string) store.Query {
	return store.Query{
		Collection: colNotices,
		Filters:    []store.Filter{store.In("classId", classIDs)},
		OrderBy:    "createdAt",
		Desc:       true,
	}
}

// ReceiptQuery is the live query over the user's read-receipt record.
func ReceiptQuery(userID string) store.Query {
	return store.Query{
		Collection: colReadReceipts,
		Filters:    []store.Filter{store.Eq("userId", userID)},
		Limit:      1,
	}
}

// MarkPrivateRead persists the read flag of one private notification.
func (r *NotificationRepository) MarkPrivateRead(ctx context.Context, id string) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Merge(colNotifications, id, map[string]interface{}{"read": true}),
	})
}

// MarkManyPrivateRead persists read flags for several private notifications
// in one atomic batch.
func (r *NotificationRepository) MarkManyPrivateRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ops := make([]store.WriteOp, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, store.Merge(colNotifications, id, map[string]interface{}{"read": true}))
	}
	return r.store.BatchWrite(ctx, ops)
}

// AddReceipts unions notification ids into the user's receipt set. The
// receipt record is created lazily on first read and never deleted.
func (r *NotificationRepository) AddReceipts(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		existing := map[string]struct{}{}
		doc, err := tx.Get(ctx, colReadReceipts, userID)
		if err == nil {
			for _, id := range store.StringsField(*doc, "ids") {
				existing[id] = struct{}{}
			}
		} else if appErrors.FromError(err).Code != appErrors.ErrNotFound.Code {
			return err
		}

		union := make([]string, 0, len(existing)+len(ids))
		for id := range existing {
			union = append(union, id)
		}
		for _, id := range ids {
			if _, dup := existing[id]; !dup {
				union = append(union, id)
			}
		}

		return tx.Merge(ctx, colReadReceipts, userID, map[string]interface{}{
			"userId":    userID,
			"ids":       union,
			"updatedAt": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// PostNotice writes a broadcast notice for a class.
func (r *NotificationRepository) PostNotice(ctx context.Context, notice models.Notification) error {
	data := map[string]interface{}{
		"classId":   notice.ClassID,
		"title":     notice.Title,
		"summary":   notice.Summary,
		"createdAt": notice.Timestamp.Format(time.RFC3339),
	}
	if notice.ExpiresAt != nil {
		data["expiresAt"] = notice.ExpiresAt.Format(time.RFC3339)
	}
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Set(colNotices, notice.ID, data),
		store.Increment(colClasses, notice.ClassID, "noticeCount", 1),
	})
}

// RemoveNotice deletes a broadcast notice and moves the class counter back.
// Receipts referencing the id become dangling, which is harmless: the merge
// only consults receipts for notices still present in the snapshot.
func (r *NotificationRepository) RemoveNotice(ctx context.Context, classID, noticeID string) error {
	return r.store.BatchWrite(ctx, []store.WriteOp{
		store.Delete(colNotices, noticeID),
		store.Increment(colClasses, classID, "noticeCount", -1),
	})
}

// NotificationFromDoc decodes a document from either stream.
func NotificationFromDoc(d store.Document, origin models.NotificationOrigin) models.Notification {
	return models.Notification{
		ID:        d.ID,
		Origin:    origin,
		UserID:    store.StringField(d, "userId"),
		ClassID:   store.StringField(d, "classId"),
		Title:     store.StringField(d, "title"),
		Summary:   store.StringField(d, "summary"),
		Timestamp: store.TimeField(d, "createdAt"),
		Read:      store.BoolField(d, "read"),
		ExpiresAt: store.OptionalTimeField(d, "expiresAt"),
	}
}

// ReceiptIDsFromDocs extracts the receipt id set from a receipt snapshot.
func ReceiptIDsFromDocs(docs []store.Document) []string {
	var ids []string
	for _, d := range docs {
		ids = append(ids, store.StringsField(d, "ids")...)
	}
	return ids
}
