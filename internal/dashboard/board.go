// Package dashboard keeps the TV board: the latest view of open, in-progress
// and recently closed orders, refreshed by polling and pushed to viewers.
package dashboard

import (
	"sync"
	"time"

	"github.com/storeorders/api/internal/database"
)

// Snapshot is one poll result.
type Snapshot struct {
	Seq         uint64                           `json:"seq"`
	GeneratedAt time.Time                        `json:"generated_at"`
	Open        []database.ListOrdersByStatusRow `json:"open"`
	InProgress  []database.ListOrdersByStatusRow `json:"in_progress"`
	Closed      []database.ListOrdersByStatusRow `json:"closed"`
}

// Board holds the most recently applied snapshot. Snapshots carrying a
// sequence number not above the last applied one are discarded, so a slow
// poll can never overwrite a newer result.
type Board struct {
	mu     sync.RWMutex
	latest *Snapshot
}

func NewBoard() *Board {
	return &Board{}
}

// Apply stores s if it is newer than the current snapshot.
func (b *Board) Apply(s Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest != nil && s.Seq <= b.latest.Seq {
		return false
	}
	b.latest = &s
	return true
}

// Latest returns the applied snapshot, if any poll has completed.
func (b *Board) Latest() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return Snapshot{}, false
	}
	return *b.latest, true
}
