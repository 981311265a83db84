package models

import "time"

// NotificationOrigin identifies which stream a merged item came from. The
// origin decides how a read is persisted: private items carry their own read
// flag, broadcast items are marked through a per-user read receipt.
type NotificationOrigin string

const (
	OriginPrivate   NotificationOrigin = "PRIVATE"
	OriginBroadcast NotificationOrigin = "BROADCAST"
)

// Notification is the shared read model of both variants. UserID is set for
// private items, ClassID and ExpiresAt for broadcast notices.
type Notification struct {
	ID        string             `json:"id"`
	Origin    NotificationOrigin `json:"origin"`
	UserID    string             `json:"userId,omitempty"`
	ClassID   string             `json:"classId,omitempty"`
	Title     string             `json:"title"`
	Summary   string             `json:"summary"`
	Timestamp time.Time          `json:"timestamp"`
	Read      bool               `json:"read"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty"`
}

// Visible reports whether the notification should still be shown: private
// items live for the given window after creation, broadcast notices until
// their explicit expiry.
func (n Notification) Visible(now time.Time, privateWindow time.Duration) bool {
	switch n.Origin {
	case OriginBroadcast:
		return n.ExpiresAt != nil && now.Before(*n.ExpiresAt)
	default:
		return now.Sub(n.Timestamp) <= privateWindow
	}
}

// ReadReceipt is a per-user set of broadcast notification ids already seen.
// Created lazily on first read and never deleted.
type ReadReceipt struct {
	UserID    string    `json:"userId"`
	IDs       []string  `json:"ids"`
	UpdatedAt time.Time `json:"updatedAt"`
}
