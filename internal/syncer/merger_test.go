package syncer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/models"
)

func private(id string, age time.Duration, read bool) models.Notification {
	return models.Notification{
		ID:        id,
		Origin:    models.OriginPrivate,
		UserID:    "u1",
		Title:     id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(-age),
		Read:      read,
	}
}

func broadcast(id string, age time.Duration) models.Notification {
	return models.Notification{
		ID:        id,
		Origin:    models.OriginBroadcast,
		ClassID:   "c1",
		Title:     id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestMergerCombinesStreamsNewestFirst(t *testing.T) {
	m := NewMerger()
	m.SetPrivate([]models.Notification{private("p1", 3*time.Minute, false)})
	m.SetBroadcast([]models.Notification{
		broadcast("b1", time.Minute),
		broadcast("b2", 5*time.Minute),
	})

	view := m.View()
	require.Len(t, view, 3)
	assert.Equal(t, "b1", view[0].ID)
	assert.Equal(t, "p1", view[1].ID)
	assert.Equal(t, "b2", view[2].ID)
}

func TestMergerReceiptsMarkBroadcastRead(t *testing.T) {
	m := NewMerger()
	m.SetBroadcast([]models.Notification{
		broadcast("b1", time.Minute),
		broadcast("b2", 2*time.Minute),
	})
	m.SetReceipts([]string{"b2"})

	for _, n := range m.View() {
		switch n.ID {
		case "b1":
			assert.False(t, n.Read)
		case "b2":
			assert.True(t, n.Read, "receipted notice must read as read")
		}
	}
	assert.Equal(t, 1, m.UnreadCount())
}

func TestMergerSnapshotOrderIrrelevant(t *testing.T) {
	privateItems := []models.Notification{private("p1", time.Minute, false)}
	broadcastItems := []models.Notification{broadcast("b1", 2*time.Minute)}
	receipts := []string{"b1"}

	a := NewMerger()
	a.SetPrivate(privateItems)
	a.SetBroadcast(broadcastItems)
	a.SetReceipts(receipts)

	b := NewMerger()
	b.SetReceipts(receipts)
	b.SetBroadcast(broadcastItems)
	b.SetPrivate(privateItems)

	assert.Equal(t, a.View(), b.View(), "merged view must not depend on snapshot arrival order")
}

func TestMergerSnapshotReplaceNotAppend(t *testing.T) {
	m := NewMerger()
	m.SetPrivate([]models.Notification{
		private("p1", time.Minute, false),
		private("p2", 2*time.Minute, false),
	})
	m.SetPrivate([]models.Notification{private("p2", 2*time.Minute, false)})

	view := m.View()
	require.Len(t, view, 1)
	assert.Equal(t, "p2", view[0].ID)
}

func TestMergerOptimisticUpdates(t *testing.T) {
	m := NewMerger()
	m.SetPrivate([]models.Notification{private("p1", time.Minute, false)})
	m.SetBroadcast([]models.Notification{broadcast("b1", 2*time.Minute)})
	require.Equal(t, 2, m.UnreadCount())

	m.DropPrivate("p1")
	m.AddReceipt("b1")
	assert.Equal(t, 0, m.UnreadCount())
	assert.Len(t, m.View(), 1, "dropped private item leaves the view")
}

func TestMergerManyClassStreams(t *testing.T) {
	m := NewMerger()
	var notices []models.Notification
	for i := 0; i < 11; i++ {
		notices = append(notices, models.Notification{
			ID:        fmt.Sprintf("b%02d", i),
			Origin:    models.OriginBroadcast,
			ClassID:   fmt.Sprintf("c%02d", i),
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Minute),
		})
	}
	m.SetBroadcast(notices)

	view := m.View()
	assert.Len(t, view, 11)
	assert.Equal(t, 11, m.UnreadCount())
}
