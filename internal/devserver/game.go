package devserver

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/hub"
)

// liveGame is the server-side game record. The hidden target lives here
// and is only copied into snapshots once the game finishes.
type liveGame struct {
	state  game.GameState
	target []string
}

// snapshot builds the client-facing view of the game.
func (g *liveGame) snapshot() game.GameState {
	out := g.state
	out.Cups = slices.Clone(g.state.Cups)
	out.PlayerOrder = slices.Clone(g.state.PlayerOrder)
	out.AvailableColors = slices.Clone(g.state.AvailableColors)
	if g.state.CurrentPlayerID != nil {
		id := *g.state.CurrentPlayerID
		out.CurrentPlayerID = &id
	}
	if g.state.Status == game.StatusFinished {
		out.TargetPattern = slices.Clone(g.target)
	} else {
		out.TargetPattern = nil
	}
	return out
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req game.StartGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "roomCode required")
		return
	}
	code := strings.ToUpper(req.RoomCode)

	s.mu.Lock()
	rm, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	// The room leader arranges the hidden pattern first.
	leaderID := rm.leaderID
	order := make([]int, 0, len(rm.users))
	for _, u := range rm.users {
		order = append(order, u.ID)
	}

	g := &liveGame{state: game.GameState{
		GameID:          uuid.NewString(),
		RoomCode:        code,
		Status:          game.StatusSetup,
		Cups:            make([]string, game.BoardSize),
		CurrentPlayerID: &leaderID,
		PlayerOrder:     order,
		TurnEndsAtUTC:   s.now().Add(turnDuration).UTC().Format(time.RFC3339),
		AvailableColors: slices.Clone(Palette),
	}}
	s.games[g.state.GameID] = g
	rm.activeGameID = g.state.GameID
	snap := g.snapshot()
	s.mu.Unlock()

	s.log.Info("game started", zap.String("room", code), zap.String("game", snap.GameID))
	s.hub.broadcast(gameTopic(snap.GameID), hub.ServerEnvelope{Type: hub.EventStateUpdated, State: &snap})
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g, ok := s.games[chi.URLParam(r, "gameID")]
	var snap game.GameState
	if ok {
		snap = g.snapshot()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePlaceInitial(w http.ResponseWriter, r *http.Request) {
	var req game.PlaceInitialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	s.mu.Lock()
	g, ok := s.games[chi.URLParam(r, "gameID")]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if g.state.Status != game.StatusSetup {
		s.mu.Unlock()
		badRequestf(w, "game is not in setup")
		return
	}
	if !g.state.IsTurnOf(req.PlayerID) {
		s.mu.Unlock()
		badRequestf(w, "not your turn to arrange")
		return
	}
	if len(req.Cups) != game.BoardSize || game.HasDuplicateColors(req.Cups) {
		s.mu.Unlock()
		badRequestf(w, "arrangement must be %d distinct colors", game.BoardSize)
		return
	}
	for _, c := range req.Cups {
		if !slices.Contains(Palette, c) {
			s.mu.Unlock()
			badRequestf(w, "unknown color %q", c)
			return
		}
	}

	g.target = slices.Clone(req.Cups)
	g.state.Cups = shuffled(req.Cups)
	g.state.Status = game.StatusInProgress
	g.state.AvailableColors = nil
	g.state.Hits = countHits(g.state.Cups, g.target)
	s.advanceTurnLocked(g)
	snap := g.snapshot()
	s.mu.Unlock()

	s.hub.broadcast(gameTopic(snap.GameID), hub.ServerEnvelope{Type: hub.EventStateUpdated, State: &snap})
	s.hub.broadcast(gameTopic(snap.GameID), hub.ServerEnvelope{
		Type:            hub.EventTurnChanged,
		CurrentPlayerID: snap.CurrentPlayerID,
		TurnEndsAtUTC:   snap.TurnEndsAtUTC,
	})
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req game.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if err := game.ValidateSwap(req.FromIndex, req.ToIndex); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	g, ok := s.games[chi.URLParam(r, "gameID")]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if g.state.Status != game.StatusInProgress {
		s.mu.Unlock()
		badRequestf(w, "game is not in progress")
		return
	}
	if !g.state.IsTurnOf(req.PlayerID) {
		s.mu.Unlock()
		badRequestf(w, "not your turn")
		return
	}

	cups := g.state.Cups
	cups[req.FromIndex], cups[req.ToIndex] = cups[req.ToIndex], cups[req.FromIndex]
	g.state.TotalMoves++
	g.state.Hits = countHits(cups, g.target)

	var feedback string
	if g.state.Hits == game.BoardSize {
		g.state.Status = game.StatusFinished
		g.state.CurrentPlayerID = nil
		feedback = "all cups match!"
	} else {
		feedback = hitMessage(g.state.Hits)
		s.advanceTurnLocked(g)
	}
	snap := g.snapshot()
	s.mu.Unlock()

	topic := gameTopic(snap.GameID)
	s.hub.broadcast(topic, hub.ServerEnvelope{Type: hub.EventStateUpdated, State: &snap})
	s.hub.broadcast(topic, hub.ServerEnvelope{Type: hub.EventHitFeedback, Message: feedback})
	if snap.Status == game.StatusFinished {
		s.hub.broadcast(topic, hub.ServerEnvelope{Type: hub.EventFinished, State: &snap})
	} else {
		s.hub.broadcast(topic, hub.ServerEnvelope{
			Type:            hub.EventTurnChanged,
			CurrentPlayerID: snap.CurrentPlayerID,
			TurnEndsAtUTC:   snap.TurnEndsAtUTC,
		})
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTick reconciles turn expiry: an expired turn advances even when
// the active player never moved.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g, ok := s.games[chi.URLParam(r, "gameID")]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "game not found")
		return
	}

	advanced := false
	if g.state.Status == game.StatusInProgress {
		if deadline := g.state.TurnDeadline(); !deadline.IsZero() && s.now().After(deadline) {
			s.advanceTurnLocked(g)
			advanced = true
		}
	}
	snap := g.snapshot()
	s.mu.Unlock()

	if advanced {
		topic := gameTopic(snap.GameID)
		s.hub.broadcast(topic, hub.ServerEnvelope{Type: hub.EventStateUpdated, State: &snap})
		s.hub.broadcast(topic, hub.ServerEnvelope{
			Type:            hub.EventTurnChanged,
			CurrentPlayerID: snap.CurrentPlayerID,
			TurnEndsAtUTC:   snap.TurnEndsAtUTC,
		})
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) advanceTurnLocked(g *liveGame) {
	order := g.state.PlayerOrder
	if len(order) == 0 {
		return
	}
	next := order[0]
	if g.state.CurrentPlayerID != nil {
		for i, id := range order {
			if id == *g.state.CurrentPlayerID {
				next = order[(i+1)%len(order)]
				break
			}
		}
	}
	g.state.CurrentPlayerID = &next
	g.state.TurnEndsAtUTC = s.now().Add(turnDuration).UTC().Format(time.RFC3339)
}

func countHits(cups, target []string) int {
	hits := 0
	for i := range cups {
		if i < len(target) && cups[i] == target[i] {
			hits++
		}
	}
	return hits
}

func hitMessage(hits int) string {
	switch hits {
	case 0:
		return "no cups match yet"
	case 1:
		return "1 cup matches"
	default:
		return strconv.Itoa(hits) + " cups match"
	}
}

func shuffled(cups []string) []string {
	out := slices.Clone(cups)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
