// Package devserver is an in-memory stand-in for the real Room/Game
// backend: the full REST surface plus the push hub, with just enough game
// rules to play a round locally. It backs the devserver command and the
// integration tests; it persists nothing.
package devserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
)

// Palette is the fixed color supply for a six-cup board.
var Palette = []string{"red", "blue", "green", "yellow", "purple", "orange"}

const turnDuration = 30 * time.Second

type Server struct {
	log *zap.Logger
	now func() time.Time

	mu         sync.Mutex
	nextUserID int
	users      map[int]game.User
	rooms      map[string]*room
	games      map[string]*liveGame

	hub *pushHub
}

type room struct {
	code         string
	leaderID     int
	users        []game.User
	activeGameID string
}

func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:   log,
		now:   time.Now,
		users: make(map[int]game.User),
		rooms: make(map[string]*room),
		games: make(map[string]*liveGame),
	}
	s.hub = newPushHub(s, log)
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/game/start", s.handleStartGame)
	r.Get("/game/{gameID}", s.handleGetGame)
	r.Post("/game/{gameID}/place-initial", s.handlePlaceInitial)
	r.Post("/game/{gameID}/swap", s.handleSwap)
	r.Post("/game/{gameID}/tick", s.handleTick)

	r.Post("/room/create", s.handleCreateRoom)
	r.Post("/room/join/{username}/{roomCode}", s.handleJoinRoom)
	r.Post("/room/leave/{roomCode}", s.handleLeaveRoom)
	r.Get("/room/by-code/{roomCode}", s.handleGetRoom)

	r.Post("/users", s.handleCreateUser)
	r.Get("/users/{id}", s.handleGetUser)

	r.Get("/hub", s.hub.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Username) == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}
	s.mu.Lock()
	u := s.createUserLocked(body.Username)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) createUserLocked(username string) game.User {
	s.nextUserID++
	u := game.User{ID: s.nextUserID, Username: username}
	s.users[u.ID] = u
	return u
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Username) == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}

	s.mu.Lock()
	leader := s.createUserLocked(body.Username)
	code := s.newRoomCodeLocked()
	rm := &room{code: code, leaderID: leader.ID, users: []game.User{leader}}
	s.rooms[code] = rm
	out := rm.toModel()
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	code := strings.ToUpper(chi.URLParam(r, "roomCode"))

	s.mu.Lock()
	rm, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	u := s.createUserLocked(username)
	rm.users = append(rm.users, u)
	out := game.JoinRoomResult{Code: rm.code, UserID: u.ID, Username: u.Username, Users: append([]game.User(nil), rm.users...)}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "roomCode"))
	var body struct {
		UserID int `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	s.mu.Lock()
	rm, ok := s.rooms[code]
	if ok {
		for i, u := range rm.users {
			if u.ID == body.UserID {
				rm.users = append(rm.users[:i], rm.users[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "roomCode"))
	s.mu.Lock()
	rm, ok := s.rooms[code]
	var out game.Room
	if ok {
		out = rm.toModel()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rm *room) toModel() game.Room {
	return game.Room{
		Code:         rm.code,
		LeaderID:     rm.leaderID,
		Users:        append([]game.User(nil), rm.users...),
		ActiveGameID: rm.activeGameID,
	}
}

func (s *Server) newRoomCodeLocked() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		code := make([]byte, 4)
		for i := range code {
			code[i] = charset[rand.Intn(len(charset))]
		}
		if _, taken := s.rooms[string(code)]; !taken {
			return string(code)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequestf(w http.ResponseWriter, format string, args ...any) {
	writeError(w, http.StatusBadRequest, fmt.Sprintf(format, args...))
}
