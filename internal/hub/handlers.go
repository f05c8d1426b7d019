package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
)

// Status is the connection lifecycle state reported to OnConnStatus.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// Handlers is one consumer's set of event callbacks. Every field is
// optional; nil callbacks are skipped.
type Handlers struct {
	OnStateUpdated func(game.GameState)
	OnTurnChanged  func(currentPlayerID *int, turnEndsAtUTC string)
	OnHitFeedback  func(message string)
	OnFinished     func(game.GameState)
	OnPlayerJoined func(username string)
	OnPlayerLeft   func(username string)
	OnChatMessage  func(game.ChatMessage)
	OnConnStatus   func(status Status, cause error)
	OnForceRejoin  func(roomCode string)
}

// handlerSet fans events out to every registered consumer. Registrations
// are independent: removing one leaves the others attached.
type handlerSet struct {
	mu   sync.RWMutex
	next int
	regs map[int]Handlers
	log  *zap.Logger
}

func newHandlerSet(log *zap.Logger) *handlerSet {
	return &handlerSet{regs: make(map[int]Handlers), log: log}
}

func (h *handlerSet) add(hs Handlers) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.regs[id] = hs
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.regs, id)
		h.mu.Unlock()
	}
}

// snapshot copies the registrations so dispatch never holds the lock while
// running consumer code.
func (h *handlerSet) snapshot() []Handlers {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Handlers, 0, len(h.regs))
	for _, hs := range h.regs {
		out = append(out, hs)
	}
	return out
}

// fire runs fn for each registration, isolating panics so one broken
// consumer cannot starve the rest.
func (h *handlerSet) fire(event EventKind, fn func(Handlers)) {
	for _, hs := range h.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Error("handler panicked", zap.String("event", string(event)), zap.Any("panic", r))
				}
			}()
			fn(hs)
		}()
	}
}

func (h *handlerSet) fireStatus(status Status, cause error) {
	h.fire("ConnStatus", func(hs Handlers) {
		if hs.OnConnStatus != nil {
			hs.OnConnStatus(status, cause)
		}
	})
}

// dispatch routes a decoded server event to the matching callbacks.
func (h *handlerSet) dispatch(env ServerEnvelope) {
	switch env.Type {
	case EventStateUpdated:
		if env.State == nil {
			return
		}
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnStateUpdated != nil {
				hs.OnStateUpdated(*env.State)
			}
		})
	case EventTurnChanged:
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnTurnChanged != nil {
				hs.OnTurnChanged(env.CurrentPlayerID, env.TurnEndsAtUTC)
			}
		})
	case EventHitFeedback:
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnHitFeedback != nil {
				hs.OnHitFeedback(env.Message)
			}
		})
	case EventFinished:
		if env.State == nil {
			return
		}
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnFinished != nil {
				hs.OnFinished(*env.State)
			}
		})
	case EventPlayerJoined:
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnPlayerJoined != nil {
				hs.OnPlayerJoined(env.Username)
			}
		})
	case EventPlayerLeft:
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnPlayerLeft != nil {
				hs.OnPlayerLeft(env.Username)
			}
		})
	case EventChatMessage:
		if env.Chat == nil {
			return
		}
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnChatMessage != nil {
				hs.OnChatMessage(*env.Chat)
			}
		})
	case EventForceRejoin:
		h.fire(env.Type, func(hs Handlers) {
			if hs.OnForceRejoin != nil {
				hs.OnForceRejoin(env.RoomCode)
			}
		})
	default:
		h.log.Warn("unknown push event", zap.String("type", string(env.Type)))
	}
}
