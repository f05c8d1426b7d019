// Package setup manages the pre-game draft board for the arranging
// participant: six slots filled from a supply of colors, no duplicates,
// confirmed as the initial arrangement once complete.
package setup

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/store"
)

// Direction breaks ties when two empty slots are equidistant from a
// displacing drop.
type Direction int

const (
	PreferLeft Direction = iota
	PreferRight
)

// API is the slice of the Room/Game client a confirmation needs.
type API interface {
	PlaceInitial(ctx context.Context, gameID string, req game.PlaceInitialRequest) (game.GameState, error)
}

type Coordinator struct {
	gameID   string
	playerID int
	store    *store.Store
	api      API
	log      *zap.Logger

	mu      sync.Mutex
	draft   []string // "" marks an empty slot
	pending bool
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
		draft:    make([]string, game.BoardSize),
	}
}

// Draft returns a copy of the current slots; "" is an empty slot.
func (c *Coordinator) Draft() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.draft)
}

// Used reports the colors already placed somewhere in the draft.
func (c *Coordinator) Used() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	used := make(map[string]bool)
	for _, col := range c.draft {
		if col != "" {
			used[col] = true
		}
	}
	return used
}

// Place puts a color into an empty slot. Placing an already-used color or
// targeting an occupied slot is rejected; displacement is an explicit
// gesture, not the default.
func (c *Coordinator) Place(color string, idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.draft) {
		return game.ValidationError{Field: "slot", Reason: fmt.Sprintf("index %d out of range", idx)}
	}
	if c.usedLocked(color) {
		return game.ValidationError{Field: "color", Reason: "can't repeat colors"}
	}
	if c.draft[idx] != "" {
		return game.ValidationError{Field: "slot", Reason: fmt.Sprintf("slot %d is occupied", idx)}
	}
	c.draft[idx] = color
	return nil
}

// PlaceDisplacing drops a color onto any slot. An occupied target pushes
// entries toward the nearest empty slot by index distance; on an exact tie
// the caller's drag direction wins. Fails only when the color is used or
// the board has no empty slot.
func (c *Coordinator) PlaceDisplacing(color string, idx int, prefer Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.draft) {
		return game.ValidationError{Field: "slot", Reason: fmt.Sprintf("index %d out of range", idx)}
	}
	if c.usedLocked(color) {
		return game.ValidationError{Field: "color", Reason: "can't repeat colors"}
	}
	if c.draft[idx] == "" {
		c.draft[idx] = color
		return nil
	}

	hole := nearestEmpty(c.draft, idx, prefer)
	if hole == -1 {
		return game.ValidationError{Field: "slot", Reason: "no empty slot left"}
	}
	if hole > idx {
		for i := hole; i > idx; i-- {
			c.draft[i] = c.draft[i-1]
		}
	} else {
		for i := hole; i < idx; i++ {
			c.draft[i] = c.draft[i+1]
		}
	}
	c.draft[idx] = color
	return nil
}

// Remove clears a slot, returning its color to the supply.
func (c *Coordinator) Remove(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx >= 0 && idx < len(c.draft) {
		c.draft[idx] = ""
	}
}

// CanConfirm requires every slot filled and no repeated colors.
func (c *Coordinator) CanConfirm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.missingLocked() == 0 && !game.HasDuplicateColors(c.draft)
}

// BlockReason names what blocks confirmation so the UI can show the
// specific problem, or "" when confirmation is allowed.
func (c *Coordinator) BlockReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.missingLocked(); n > 0 {
		return fmt.Sprintf("Missing %d cups", n)
	}
	if game.HasDuplicateColors(c.draft) {
		return "can't repeat colors"
	}
	return ""
}

// Confirm submits the draft as the initial arrangement. Only valid for
// the arranger on their turn with a complete, duplicate-free draft. On
// success the draft is cleared and the response becomes the new
// authoritative state.
func (c *Coordinator) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return nil
	}
	if n := c.missingLocked(); n > 0 {
		c.mu.Unlock()
		return game.ValidationError{Field: "draft", Reason: fmt.Sprintf("Missing %d cups", n)}
	}
	if game.HasDuplicateColors(c.draft) {
		c.mu.Unlock()
		return game.ValidationError{Field: "draft", Reason: "can't repeat colors"}
	}
	cups := slices.Clone(c.draft)
	c.pending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()

	if state, ok := c.store.Get(c.gameID); !ok || !state.IsTurnOf(c.playerID) {
		return game.ValidationError{Field: "turn", Reason: "not your turn to arrange"}
	}

	updated, err := c.api.PlaceInitial(ctx, c.gameID, game.PlaceInitialRequest{
		PlayerID: c.playerID,
		Cups:     cups,
	})
	if err != nil {
		c.log.Debug("initial placement rejected", zap.Error(err))
		return err
	}
	c.store.Replace(updated)

	c.mu.Lock()
	c.draft = make([]string, game.BoardSize)
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) usedLocked(color string) bool {
	return slices.Contains(c.draft, color)
}

func (c *Coordinator) missingLocked() int {
	n := 0
	for _, col := range c.draft {
		if col == "" {
			n++
		}
	}
	return n
}

// nearestEmpty finds the empty slot closest to idx by index distance,
// breaking exact ties with prefer. Returns -1 when the board is full.
func nearestEmpty(board []string, idx int, prefer Direction) int {
	best := -1
	for i, col := range board {
		if col != "" {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		di, dbest := abs(i-idx), abs(best-idx)
		switch {
		case di < dbest:
			best = i
		case di == dbest && prefer == PreferRight && i > best:
			best = i
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
