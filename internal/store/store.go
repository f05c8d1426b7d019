package store

import (
	"slices"
	"sync"

	"github.com/colornodes/client-go/internal/game"
)

// Store is the single source of truth for the last known GameState per
// game id, shared by the push handler and the HTTP mutation paths.
//
// Replacement is last-write-wins: the server attaches no sequence numbers,
// so the store accepts whatever arrives most recently and does not try to
// reorder late pushes. Every writer sends a complete snapshot, which keeps
// this safe in practice.
type Store struct {
	mu    sync.RWMutex
	games map[string]entry
}

type entry struct {
	state game.GameState
	gen   uint64
}

func New() *Store {
	return &Store{games: make(map[string]entry)}
}

func (s *Store) Get(gameID string) (game.GameState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.games[gameID]
	if !ok {
		return game.GameState{}, false
	}
	return cloneState(e.state), true
}

// Replace installs an authoritative snapshot, keyed by the state's own
// game id so callers cannot file a snapshot under the wrong game.
func (s *Store) Replace(state game.GameState) {
	if state.GameID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.games[state.GameID]
	s.games[state.GameID] = entry{state: cloneState(state), gen: e.gen + 1}
}

// Delete drops a cached game, e.g. after the server reports it gone.
func (s *Store) Delete(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
}

// Txn captures the pre-mutation snapshot of an optimistic patch so the
// caller can revert it if the corresponding HTTP mutation fails.
type Txn struct {
	store    *Store
	gameID   string
	snapshot game.GameState
	gen      uint64
	once     sync.Once
}

// TryMutate applies a speculative local mutation immediately and returns a
// transaction that can roll it back. Returns false when the game is not in
// the store.
func (s *Store) TryMutate(gameID string, apply func(*game.GameState)) (*Txn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.games[gameID]
	if !ok {
		return nil, false
	}

	txn := &Txn{store: s, gameID: gameID, snapshot: cloneState(e.state), gen: e.gen + 1}
	next := cloneState(e.state)
	apply(&next)
	s.games[gameID] = entry{state: next, gen: e.gen + 1}
	return txn, true
}

// Rollback restores the pre-mutation snapshot. It is a no-op if anything
// replaced the state after the optimistic patch, because an authoritative
// snapshot always supersedes the patch it was racing with.
func (t *Txn) Rollback() {
	t.once.Do(func() {
		t.store.mu.Lock()
		defer t.store.mu.Unlock()
		e, ok := t.store.games[t.gameID]
		if !ok || e.gen != t.gen {
			return
		}
		t.store.games[t.gameID] = entry{state: t.snapshot, gen: e.gen + 1}
	})
}

// Commit discards the rollback snapshot; the optimistic state stands until
// the authoritative response replaces it.
func (t *Txn) Commit() {
	t.once.Do(func() {})
}

func cloneState(s game.GameState) game.GameState {
	out := s
	out.Cups = slices.Clone(s.Cups)
	out.PlayerOrder = slices.Clone(s.PlayerOrder)
	out.TargetPattern = slices.Clone(s.TargetPattern)
	out.AvailableColors = slices.Clone(s.AvailableColors)
	if s.CurrentPlayerID != nil {
		id := *s.CurrentPlayerID
		out.CurrentPlayerID = &id
	}
	return out
}
