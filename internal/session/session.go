// Package session glues the push channel, the state store, and the
// HTTP api together, and derives the current phase of play. The client is
// a pure follower of GameState.status; there is no locally-held phase.
package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/hub"
	"github.com/colornodes/client-go/internal/store"
)

type Phase string

const (
	PhaseLoading    Phase = "Loading"
	PhaseSetup      Phase = "Setup"
	PhaseInProgress Phase = "InProgress"
	PhaseFinished   Phase = "Finished"
)

// API is the slice of the Room/Game client the session needs.
type API interface {
	GetGame(ctx context.Context, gameID string) (game.GameState, error)
	Tick(ctx context.Context, gameID string) (game.GameState, error)
}

// Session follows one game over one push-channel connection. Callbacks
// are optional; nil callbacks are skipped.
type Session struct {
	roomCode string
	gameID   string
	store    *store.Store
	api      API
	conn     *hub.Conn
	log      *zap.Logger

	unregister func()

	OnChange      func(game.GameState)
	OnHitFeedback func(message string)
	OnChat        func(game.ChatMessage)
	OnPlayerEvent func(username string, joined bool)
	OnConnStatus  func(status hub.Status, cause error)
	OnForceRejoin func(roomCode string)
	// OnGameGone fires when the server no longer knows the game, so the
	// caller can drop its cached game id and fall back to waiting.
	OnGameGone func(gameID string)
}

func New(roomCode, gameID string, st *store.Store, api API, conn *hub.Conn, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		roomCode: roomCode,
		gameID:   gameID,
		store:    st,
		api:      api,
		conn:     conn,
		log:      log,
	}
}

// Phase is derived purely from the latest stored status.
func (s *Session) Phase() Phase {
	state, ok := s.store.Get(s.gameID)
	if !ok {
		return PhaseLoading
	}
	switch state.Status {
	case game.StatusSetup:
		return PhaseSetup
	case game.StatusInProgress:
		return PhaseInProgress
	case game.StatusFinished:
		return PhaseFinished
	default:
		return PhaseLoading
	}
}

// Start registers push handlers, connects, subscribes to the game topic,
// and primes the store with a fresh fetch.
func (s *Session) Start(ctx context.Context) error {
	s.unregister = s.conn.RegisterHandlers(hub.Handlers{
		OnStateUpdated: s.applyState,
		OnFinished:     s.applyState,
		// The TurnChanged push omits the reset deadline, so refetch via
		// tick instead of patching currentPlayerId locally.
		OnTurnChanged: func(_ *int, _ string) { s.refresh(context.Background()) },
		OnHitFeedback: func(m string) {
			if s.OnHitFeedback != nil {
				s.OnHitFeedback(m)
			}
		},
		OnChatMessage: func(msg game.ChatMessage) {
			if s.OnChat != nil {
				s.OnChat(msg)
			}
		},
		OnPlayerJoined: func(u string) {
			if s.OnPlayerEvent != nil {
				s.OnPlayerEvent(u, true)
			}
		},
		OnPlayerLeft: func(u string) {
			if s.OnPlayerEvent != nil {
				s.OnPlayerEvent(u, false)
			}
		},
		OnConnStatus: func(status hub.Status, cause error) {
			if s.OnConnStatus != nil {
				s.OnConnStatus(status, cause)
			}
		},
		OnForceRejoin: func(roomCode string) {
			if s.OnForceRejoin != nil {
				s.OnForceRejoin(roomCode)
			}
		},
	})

	if err := s.conn.Start(ctx); err != nil {
		return err
	}
	if s.gameID != "" {
		if err := s.conn.SubscribeGame(ctx, s.gameID); err != nil {
			s.log.Warn("game subscribe failed", zap.Error(err))
		}
		if err := s.prime(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches this session's handlers and game subscription, leaving
// the shared connection up for other consumers.
func (s *Session) Close(ctx context.Context) {
	if s.unregister != nil {
		s.unregister()
		s.unregister = nil
	}
	if s.gameID != "" {
		_ = s.conn.UnsubscribeGame(ctx, s.gameID)
	}
}

func (s *Session) prime(ctx context.Context) error {
	state, err := s.api.GetGame(ctx, s.gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			s.gone()
			return nil
		}
		return err
	}
	s.applyState(state)
	return nil
}

func (s *Session) refresh(ctx context.Context) {
	if s.gameID == "" {
		return
	}
	updated, err := s.api.Tick(ctx, s.gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			s.gone()
			return
		}
		s.log.Debug("turn refresh failed", zap.Error(err))
		return
	}
	s.applyState(updated)
}

func (s *Session) applyState(state game.GameState) {
	if state.GameID == "" {
		return
	}
	s.store.Replace(state)
	if s.OnChange != nil {
		s.OnChange(state)
	}
}

func (s *Session) gone() {
	s.store.Delete(s.gameID)
	if s.OnGameGone != nil {
		s.OnGameGone(s.gameID)
	}
}
