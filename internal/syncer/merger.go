package syncer

import (
	"sort"
	"sync"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
)

// Merger combines the private per-user notification stream, the per-class
// broadcast stream and the read-receipt set into one ordered, deduplicated
// view. The three inputs update independently and in any relative order; the
// merged view is a pure function of the latest snapshot of each.
type Merger struct {
	mu        sync.Mutex
	private   []models.Notification
	broadcast []models.Notification
	receipts  map[string]struct{}
}

// NewMerger constructs an empty merger.
func NewMerger() *Merger {
	return &Merger{receipts: make(map[string]struct{})}
}

// SetPrivate replaces the private-stream snapshot.
func (m *Merger) SetPrivate(items []models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private = append([]models.Notification(nil), items...)
}

// SetBroadcast replaces the broadcast-stream snapshot.
func (m *Merger) SetBroadcast(items []models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append([]models.Notification(nil), items...)
}

// SetReceipts replaces the read-receipt snapshot.
func (m *Merger) SetReceipts(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m.receipts[id] = struct{}{}
	}
}

// DropPrivate optimistically removes a private item from the local snapshot
// after its read flag has been persisted; the live subscription reconciles.
func (m *Merger) DropPrivate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.private[:0]
	for _, n := range m.private {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	m.private = kept
}

// AddReceipt optimistically adds a broadcast id to the local receipt set.
func (m *Merger) AddReceipt(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[id] = struct{}{}
}

// View recomputes the merged view: both lists concatenated, each item's read
// flag recomputed as original.read OR receipts.has(id), sorted descending by
// timestamp. Ties keep insertion order (private before broadcast).
func (m *Merger) View() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make([]models.Notification, 0, len(m.private)+len(m.broadcast))
	for _, n := range m.private {
		n.Origin = models.OriginPrivate
		_, receipted := m.receipts[n.ID]
		n.Read = n.Read || receipted
		merged = append(merged, n)
	}
	for _, n := range m.broadcast {
		n.Origin = models.OriginBroadcast
		_, receipted := m.receipts[n.ID]
		n.Read = n.Read || receipted
		merged = append(merged, n)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	return merged
}

// UnreadCount counts items with a false read flag in the merged view.
func (m *Merger) UnreadCount() int {
	count := 0
	for _, n := range m.View() {
		if !n.Read {
			count++
		}
	}
	return count
}
