// Package swap drives the in-progress phase: whose turn it is, the
// two-click and drag swap gestures, and swap submission.
package swap

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/store"
)

const noneSelected = -1

// API is the slice of the Room/Game client a swap needs.
type API interface {
	Swap(ctx context.Context, gameID string, req game.SwapRequest) (game.GameState, error)
}

type Coordinator struct {
	gameID   string
	playerID int
	store    *store.Store
	api      API
	log      *zap.Logger

	mu        sync.Mutex
	selected  int
	pending   bool
	animating bool
}

func NewCoordinator(gameID string, playerID int, st *store.Store, api API, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		gameID:   gameID,
		playerID: playerID,
		store:    st,
		api:      api,
		log:      log,
		selected: noneSelected,
	}
}

// IsMyTurn is recomputed from the latest snapshot on every call; the
// coordinator never caches turn ownership.
func (c *Coordinator) IsMyTurn() bool {
	state, ok := c.store.Get(c.gameID)
	return ok && state.IsTurnOf(c.playerID)
}

// Selected returns the currently selected slot, if any.
func (c *Coordinator) Selected() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.selected != noneSelected
}

// SetAnimating blocks swap input while the board is settling after a
// remote update, so a swap is never issued against stale visual indices.
func (c *Coordinator) SetAnimating(animating bool) {
	c.mu.Lock()
	c.animating = animating
	c.mu.Unlock()
}

// HandleSlotClick runs the two-click gesture: first click selects, a click
// on the same slot deselects, a click on a different slot submits the
// swap. The selection is cleared after every submission, successful or
// not, so a failed swap never leaves a stale highlight.
func (c *Coordinator) HandleSlotClick(ctx context.Context, idx int) error {
	c.mu.Lock()
	if !c.canAct() {
		c.mu.Unlock()
		return nil
	}
	switch {
	case c.selected == noneSelected:
		c.selected = idx
		c.mu.Unlock()
		return nil
	case c.selected == idx:
		c.selected = noneSelected
		c.mu.Unlock()
		return nil
	}
	from := c.selected
	c.pending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.selected = noneSelected
		c.pending = false
		c.mu.Unlock()
	}()
	return c.submit(ctx, from, idx)
}

// HandleDrop is the drag-and-drop variant. Dropping on the source slot,
// out of range, or while input is blocked is a silent no-op; dragging is a
// discovery-friendly input and fails soft.
func (c *Coordinator) HandleDrop(ctx context.Context, from, to int) error {
	if game.ValidateSwap(from, to) != nil {
		return nil
	}

	c.mu.Lock()
	if !c.canAct() {
		c.mu.Unlock()
		return nil
	}
	c.selected = noneSelected
	c.pending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()
	return c.submit(ctx, from, to)
}

// canAct is the triple guard: turn ownership blocks illegal moves, the
// in-flight flag blocks duplicate submissions from rapid clicks, and the
// animation flag blocks swaps against a board that is still settling.
// Callers must hold c.mu.
func (c *Coordinator) canAct() bool {
	if c.pending || c.animating {
		return false
	}
	state, ok := c.store.Get(c.gameID)
	return ok && state.IsTurnOf(c.playerID)
}

func (c *Coordinator) submit(ctx context.Context, from, to int) error {
	if err := game.ValidateSwap(from, to); err != nil {
		return err
	}

	// Reorder locally right away to mask the round trip; the
	// authoritative response (or a rollback) supersedes it.
	txn, _ := c.store.TryMutate(c.gameID, func(s *game.GameState) {
		if from < len(s.Cups) && to < len(s.Cups) {
			s.Cups[from], s.Cups[to] = s.Cups[to], s.Cups[from]
		}
	})

	updated, err := c.api.Swap(ctx, c.gameID, game.SwapRequest{
		PlayerID:  c.playerID,
		FromIndex: from,
		ToIndex:   to,
	})
	if err != nil {
		if txn != nil {
			txn.Rollback()
		}
		c.log.Debug("swap rejected", zap.Int("from", from), zap.Int("to", to), zap.Error(err))
		return err
	}
	if txn != nil {
		txn.Commit()
	}
	c.store.Replace(updated)
	return nil
}
