package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colornodes/client-go/internal/game"
)

func snapshot(gameID string, cups ...string) game.GameState {
	if len(cups) == 0 {
		cups = []string{"red", "blue", "green", "yellow", "purple", "orange"}
	}
	return game.GameState{
		GameID:   gameID,
		RoomCode: "ABCD",
		Status:   game.StatusInProgress,
		Cups:     cups,
	}
}

func TestReplaceAndGet(t *testing.T) {
	s := New()

	_, ok := s.Get("g1")
	require.False(t, ok)

	s.Replace(snapshot("g1"))
	got, ok := s.Get("g1")
	require.True(t, ok)
	require.Equal(t, "g1", got.GameID)
}

func TestReplaceIgnoresMissingGameID(t *testing.T) {
	s := New()
	s.Replace(game.GameState{})
	_, ok := s.Get("")
	require.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	s.Replace(snapshot("g1"))

	got, _ := s.Get("g1")
	got.Cups[0] = "mutated"

	again, _ := s.Get("g1")
	require.Equal(t, "red", again.Cups[0])
}

func TestOptimisticRollback(t *testing.T) {
	s := New()
	s.Replace(snapshot("g1"))

	txn, ok := s.TryMutate("g1", func(st *game.GameState) {
		st.Cups[0], st.Cups[1] = st.Cups[1], st.Cups[0]
	})
	require.True(t, ok)

	mid, _ := s.Get("g1")
	require.Equal(t, "blue", mid.Cups[0], "optimistic patch applied immediately")

	txn.Rollback()
	after, _ := s.Get("g1")
	require.Equal(t, "red", after.Cups[0], "rollback restores the pre-mutation snapshot")
}

func TestAuthoritativeReplaceWinsOverOptimistic(t *testing.T) {
	s := New()
	s.Replace(snapshot("g1"))

	txn, ok := s.TryMutate("g1", func(st *game.GameState) {
		st.Cups[0] = "speculative"
	})
	require.True(t, ok)

	// An authoritative snapshot lands while the mutation is in flight.
	authoritative := snapshot("g1", "orange", "purple", "yellow", "green", "blue", "red")
	s.Replace(authoritative)

	// A late rollback must not regress the authoritative state.
	txn.Rollback()

	got, _ := s.Get("g1")
	require.Equal(t, authoritative.Cups, got.Cups)
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	s := New()
	s.Replace(snapshot("g1"))

	txn, _ := s.TryMutate("g1", func(st *game.GameState) {
		st.Cups[0] = "speculative"
	})
	txn.Commit()
	txn.Rollback()

	got, _ := s.Get("g1")
	require.Equal(t, "speculative", got.Cups[0])
}

func TestTryMutateUnknownGame(t *testing.T) {
	s := New()
	txn, ok := s.TryMutate("nope", func(*game.GameState) {})
	require.False(t, ok)
	require.Nil(t, txn)
}

func TestDelete(t *testing.T) {
	s := New()
	s.Replace(snapshot("g1"))
	s.Delete("g1")
	_, ok := s.Get("g1")
	require.False(t, ok)
}
