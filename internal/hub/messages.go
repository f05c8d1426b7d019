package hub

import "github.com/colornodes/client-go/internal/game"

// OpKind is a client -> server operation on the push channel.
type OpKind string

const (
	OpJoinRoom         OpKind = "JoinRoom"
	OpSubscribeRoom    OpKind = "SubscribeRoom"
	OpSubscribeGame    OpKind = "SubscribeGame"
	OpUnsubscribeGame  OpKind = "UnsubscribeGame"
	OpSendChatMessage  OpKind = "SendChatMessage"
	OpLeaveGame        OpKind = "LeaveGame"
	OpRequestRoomReset OpKind = "RequestRoomReset"
)

// EventKind is a server -> client event. The set is closed: unknown kinds
// are logged and dropped rather than dispatched.
type EventKind string

const (
	EventStateUpdated EventKind = "StateUpdated"
	EventTurnChanged  EventKind = "TurnChanged"
	EventHitFeedback  EventKind = "HitFeedback"
	EventFinished     EventKind = "Finished"
	EventPlayerJoined EventKind = "PlayerJoined"
	EventPlayerLeft   EventKind = "PlayerLeft"
	EventChatMessage  EventKind = "ChatMessage"
	EventForceRejoin  EventKind = "ForceRejoin"
)

// ClientEnvelope is the wire form of every client -> server op. Unused
// fields are omitted per op.
type ClientEnvelope struct {
	Type     OpKind `json:"type"`
	RoomCode string `json:"roomCode,omitempty"`
	GameID   string `json:"gameId,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ServerEnvelope is the wire form of every server -> client event.
type ServerEnvelope struct {
	Type            EventKind         `json:"type"`
	State           *game.GameState   `json:"state,omitempty"`
	CurrentPlayerID *int              `json:"currentPlayerId,omitempty"`
	TurnEndsAtUTC   string            `json:"turnEndsAtUtc,omitempty"`
	Message         string            `json:"message,omitempty"`
	Username        string            `json:"username,omitempty"`
	Chat            *game.ChatMessage `json:"chat,omitempty"`
	RoomCode        string            `json:"roomCode,omitempty"`
}
