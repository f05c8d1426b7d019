// Package timer renders the turn countdown and keeps turn expiry moving
// even when no client issues a move.
package timer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/store"
)

const (
	countdownInterval = time.Second
	pollInterval      = 4 * time.Second
)

// API is the slice of the Room/Game client the reconciliation poll needs.
type API interface {
	Tick(ctx context.Context, gameID string) (game.GameState, error)
}

// TurnTimer computes remaining seconds from the absolute server deadline
// in the latest stored snapshot. It never decrements a counter: tab
// suspension or a slow reconnect cannot make it drift, because every
// reading is derived from turnEndsAtUtc and the wall clock.
type TurnTimer struct {
	gameID string
	store  *store.Store
	api    API
	log    *zap.Logger

	// Now is the clock; swapped out in tests.
	Now func() time.Time

	// OnNotFound fires when the poll learns the game no longer exists,
	// e.g. a stale cached id after a server-side reset.
	OnNotFound func()
}

func New(gameID string, st *store.Store, api API, log *zap.Logger) *TurnTimer {
	if log == nil {
		log = zap.NewNop()
	}
	return &TurnTimer{gameID: gameID, store: st, api: api, log: log, Now: time.Now}
}

// Remaining is the whole seconds left in the current turn, clamped to
// zero. A missing snapshot or unparseable deadline reads as zero.
func (t *TurnTimer) Remaining() int {
	state, ok := t.store.Get(t.gameID)
	if !ok {
		return 0
	}
	return RemainingAt(state.TurnDeadline(), t.Now())
}

// RemainingAt is the pure computation behind Remaining: whole seconds
// from now to the deadline, rounded up, clamped to zero.
func RemainingAt(deadline, now time.Time) int {
	if deadline.IsZero() {
		return 0
	}
	secs := int(math.Ceil(deadline.Sub(now).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}

// Format renders seconds as mm:ss.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Run drives the countdown callback every second and the server
// reconciliation poll every few seconds, until ctx is cancelled. The poll
// exists because turn expiry is a server-side event that can happen with
// no client action; its response is installed as authoritative state.
func (t *TurnTimer) Run(ctx context.Context, onCountdown func(secondsLeft int)) {
	countdown := time.NewTicker(countdownInterval)
	defer countdown.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-countdown.C:
			if onCountdown != nil {
				onCountdown(t.Remaining())
			}
		case <-poll.C:
			t.pollOnce(ctx)
		}
	}
}

func (t *TurnTimer) pollOnce(ctx context.Context) {
	updated, err := t.api.Tick(ctx, t.gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			t.log.Info("game gone, stopping reconciliation", zap.String("game", t.gameID))
			if t.OnNotFound != nil {
				t.OnNotFound()
			}
			return
		}
		t.log.Debug("tick poll failed", zap.Error(err))
		return
	}
	t.store.Replace(updated)
}
