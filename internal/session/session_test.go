package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/hub"
	"github.com/colornodes/client-go/internal/store"
)

type fakeAPI struct {
	state game.GameState
	err   error
	ticks int
}

func (f *fakeAPI) GetGame(context.Context, string) (game.GameState, error) { return f.state, f.err }
func (f *fakeAPI) Tick(context.Context, string) (game.GameState, error) {
	f.ticks++
	return f.state, f.err
}

func newSession(st *store.Store, api API) *Session {
	reg := hub.NewRegistry("ws://unused", nil)
	conn := reg.GetOrCreate("ABCD", hub.Identity{UserID: 7, Username: "kary"})
	return New("ABCD", "g1", st, api, conn, nil)
}

func TestPhaseFollowsStoredStatus(t *testing.T) {
	st := store.New()
	s := newSession(st, &fakeAPI{})

	require.Equal(t, PhaseLoading, s.Phase(), "no snapshot yet")

	base := game.GameState{GameID: "g1", Cups: make([]string, game.BoardSize)}

	base.Status = game.StatusSetup
	st.Replace(base)
	require.Equal(t, PhaseSetup, s.Phase())

	base.Status = game.StatusInProgress
	st.Replace(base)
	require.Equal(t, PhaseInProgress, s.Phase())

	base.Status = game.StatusFinished
	st.Replace(base)
	require.Equal(t, PhaseFinished, s.Phase())

	// The client is a pure follower: whatever status arrives last wins,
	// even a nominally backward transition.
	base.Status = game.StatusSetup
	st.Replace(base)
	require.Equal(t, PhaseSetup, s.Phase())

	base.Status = "Bogus"
	st.Replace(base)
	require.Equal(t, PhaseLoading, s.Phase(), "unknown status renders as loading, never crashes")
}

func TestApplyStateNotifiesAndStores(t *testing.T) {
	st := store.New()
	s := newSession(st, &fakeAPI{})

	var seen []string
	s.OnChange = func(g game.GameState) { seen = append(seen, g.GameID) }

	s.applyState(game.GameState{GameID: "g1", Status: game.StatusInProgress, Cups: make([]string, game.BoardSize)})
	require.Equal(t, []string{"g1"}, seen)

	got, ok := st.Get("g1")
	require.True(t, ok)
	require.Equal(t, game.StatusInProgress, got.Status)

	s.applyState(game.GameState{}) // missing game id is dropped
	require.Len(t, seen, 1)
}

func TestRefreshTicksAndApplies(t *testing.T) {
	st := store.New()
	api := &fakeAPI{state: game.GameState{GameID: "g1", Status: game.StatusInProgress, Cups: make([]string, game.BoardSize), TotalMoves: 9}}
	s := newSession(st, api)

	s.refresh(context.Background())
	require.Equal(t, 1, api.ticks)

	got, ok := st.Get("g1")
	require.True(t, ok)
	require.Equal(t, 9, got.TotalMoves)
}

func TestGoneClearsStoreAndNotifies(t *testing.T) {
	st := store.New()
	st.Replace(game.GameState{GameID: "g1", Status: game.StatusInProgress, Cups: make([]string, game.BoardSize)})
	api := &fakeAPI{err: game.ErrNotFound}
	s := newSession(st, api)

	var goneID string
	s.OnGameGone = func(id string) { goneID = id }

	s.refresh(context.Background())
	require.Equal(t, "g1", goneID)
	_, ok := st.Get("g1")
	require.False(t, ok, "stale snapshot evicted")
	require.Equal(t, PhaseLoading, s.Phase(), "falls back to the waiting view")
}
