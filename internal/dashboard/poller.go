package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/service"
	"github.com/storeorders/api/internal/ws"
)

// BoardStore defines the DB methods the poller reads.
// Satisfied by *database.Queries.
type BoardStore interface {
	ListOrdersByStatus(ctx context.Context, arg database.ListOrdersByStatusParams) ([]database.ListOrdersByStatusRow, error)
}

// Broadcaster pushes events to a WebSocket room. Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastJSON(room, eventType string, payload any) error
}

// Poller refreshes the board on a fixed interval and on demand. Polls may
// overlap; each carries an increasing sequence number and the board keeps
// only the newest result.
type Poller struct {
	store        BoardStore
	board        *Board
	hub          Broadcaster
	interval     time.Duration
	closedWindow time.Duration
	now          func() time.Time

	seq     atomic.Uint64
	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewPoller creates a Poller. Closed orders created longer than closedWindow
// ago are left off the board.
func NewPoller(store BoardStore, board *Board, hub Broadcaster, interval, closedWindow time.Duration) *Poller {
	return &Poller{
		store:        store,
		board:        board,
		hub:          hub,
		interval:     interval,
		closedWindow: closedWindow,
		now:          time.Now,
		trigger:      make(chan struct{}, 1),
	}
}

// Board returns the board the poller writes to.
func (p *Poller) Board() *Board { return p.board }

// Run polls immediately, then every interval and whenever Refresh is called,
// until ctx is cancelled. In-flight polls are waited for before returning.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer func() {
		ticker.Stop()
		p.wg.Wait()
	}()

	p.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.spawn(ctx)
		case <-p.trigger:
			p.spawn(ctx)
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("ERROR: dashboard poll: %v", err)
		}
	}()
}

// Refresh asks Run for an extra poll. Requests coalesce while one is pending.
func (p *Poller) Refresh() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Poll fetches the three order lists and applies the result to the board.
// It reports whether the result was applied; a result overtaken by a newer
// poll is discarded.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	seq := p.seq.Add(1)

	open, err := p.list(ctx, database.OrderStatusOpen, pgtype.Timestamptz{})
	if err != nil {
		return false, err
	}
	inProgress, err := p.list(ctx, database.OrderStatusInProgress, pgtype.Timestamptz{})
	if err != nil {
		return false, err
	}
	since := pgtype.Timestamptz{}
	if p.closedWindow > 0 {
		since = pgtype.Timestamptz{Time: p.now().Add(-p.closedWindow), Valid: true}
	}
	closed, err := p.list(ctx, database.OrderStatusClosed, since)
	if err != nil {
		return false, err
	}

	snap := Snapshot{
		Seq:         seq,
		GeneratedAt: p.now(),
		Open:        open,
		InProgress:  inProgress,
		Closed:      closed,
	}
	if !p.board.Apply(snap) {
		return false, nil
	}

	if err := p.hub.BroadcastJSON(enum.RoomDashboard, enum.EventBoardSnapshot, snap); err != nil {
		log.Printf("ERROR: broadcast board snapshot: %v", err)
	}
	return true, nil
}

func (p *Poller) list(ctx context.Context, status database.OrderStatus, since pgtype.Timestamptz) ([]database.ListOrdersByStatusRow, error) {
	rows, err := p.store.ListOrdersByStatus(ctx, database.ListOrdersByStatusParams{
		Status:       status,
		CreatedSince: since,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s orders: %w", status, err)
	}
	return rows, nil
}

// Notify forwards an order event to live viewers and schedules a re-poll.
func (p *Poller) Notify(ctx context.Context, ev service.OrderEvent) {
	for _, room := range []string{enum.RoomDashboard, enum.RoomWarehouse} {
		if err := p.hub.BroadcastJSON(room, ev.Type, ev); err != nil {
			log.Printf("ERROR: broadcast order event: %v", err)
			return
		}
	}
	p.Refresh()
}

// Greeting returns the current board as a WebSocket message, or nil before
// the first poll completes.
func (p *Poller) Greeting() []byte {
	snap, ok := p.board.Latest()
	if !ok {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(ws.Event{Type: enum.EventBoardSnapshot, Payload: payload})
	if err != nil {
		return nil
	}
	return msg
}
