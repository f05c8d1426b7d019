package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
	"github.com/colornodes/client-go/internal/hub"
)

func roomTopic(code string) string { return "room:" + code }
func gameTopic(id string) string   { return "game:" + id }

// pushHub is the accept side of the push channel: one websocket per
// client, a topic subscription set per connection, broadcast fan-out.
// Subscriptions die with the socket; reconnecting clients resubscribe.
type pushHub struct {
	srv *Server
	log *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]bool
	topics  map[string]map[*wsClient]bool
}

type wsClient struct {
	id       string
	outbox   chan []byte
	roomCode string
	username string
}

func newPushHub(srv *Server, log *zap.Logger) *pushHub {
	return &pushHub{
		srv:     srv,
		log:     log,
		clients: make(map[*wsClient]bool),
		topics:  make(map[string]map[*wsClient]bool),
	}
}

func (h *pushHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	client := &wsClient{id: uuid.NewString(), outbox: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	defer h.drop(client)

	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for payload := range client.outbox {
			ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
			_ = conn.Write(ctx, websocket.MessageText, payload)
			cancel()
		}
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var env hub.ClientEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Debug("bad hub payload", zap.Error(err))
			continue
		}
		h.handleOp(client, env)
	}
}

func (h *pushHub) handleOp(client *wsClient, env hub.ClientEnvelope) {
	switch env.Type {
	case hub.OpJoinRoom:
		client.roomCode = env.RoomCode
		client.username = env.Username
		h.subscribe(client, roomTopic(env.RoomCode))
		h.broadcast(roomTopic(env.RoomCode), hub.ServerEnvelope{Type: hub.EventPlayerJoined, Username: env.Username})

	case hub.OpSubscribeRoom:
		h.subscribe(client, roomTopic(env.RoomCode))

	case hub.OpSubscribeGame:
		h.subscribe(client, gameTopic(env.GameID))

	case hub.OpUnsubscribeGame:
		h.unsubscribe(client, gameTopic(env.GameID))

	case hub.OpSendChatMessage:
		h.broadcast(roomTopic(env.RoomCode), hub.ServerEnvelope{Type: hub.EventChatMessage, Chat: &game.ChatMessage{
			RoomCode: env.RoomCode,
			Sender:   env.Username,
			Text:     env.Text,
			SentAt:   h.srv.now().UTC().Format(time.RFC3339),
		}})

	case hub.OpLeaveGame:
		h.unsubscribe(client, gameTopic(env.GameID))

	case hub.OpRequestRoomReset:
		h.srv.resetRoom(env.RoomCode)
		h.broadcast(roomTopic(env.RoomCode), hub.ServerEnvelope{Type: hub.EventForceRejoin, RoomCode: env.RoomCode})

	default:
		h.log.Debug("unknown hub op", zap.String("type", string(env.Type)))
	}
}

func (h *pushHub) subscribe(client *wsClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*wsClient]bool)
	}
	h.topics[topic][client] = true
}

func (h *pushHub) unsubscribe(client *wsClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], client)
}

func (h *pushHub) drop(client *wsClient) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for _, subs := range h.topics {
		delete(subs, client)
	}
	close(client.outbox)
	roomCode, username := client.roomCode, client.username
	h.mu.Unlock()

	if roomCode != "" && username != "" {
		h.broadcast(roomTopic(roomCode), hub.ServerEnvelope{Type: hub.EventPlayerLeft, Username: username})
	}
}

func (h *pushHub) broadcast(topic string, env hub.ServerEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error("encode push event", zap.Error(err))
		return
	}

	h.mu.Lock()
	var full []*wsClient
	for client := range h.topics[topic] {
		select {
		case client.outbox <- payload:
		default:
			// Slow client; drop it rather than block the broadcast.
			full = append(full, client)
		}
	}
	h.mu.Unlock()

	for _, client := range full {
		h.drop(client)
	}
}

// resetRoom forgets the active game so the next start builds a fresh one.
func (s *Server) resetRoom(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[roomCode]
	if !ok {
		return
	}
	if rm.activeGameID != "" {
		delete(s.games, rm.activeGameID)
		rm.activeGameID = ""
	}
}
