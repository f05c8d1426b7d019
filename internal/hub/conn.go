package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/colornodes/client-go/internal/game"
)

// reconnectDelays is the fixed backoff schedule: retry immediately, then
// back off. After the last attempt fails the connection is declared
// disconnected and the caller has to Start again.
var reconnectDelays = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second}

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 3 * time.Second
)

// Conn is one persistent push-channel connection for a (room, identity)
// pair. All UI consumers share it through RegisterHandlers; the transport
// reconnects and replays subscriptions on its own.
type Conn struct {
	url      string
	roomCode string
	identity Identity
	log      *zap.Logger
	handlers *handlerSet
	sf       singleflight.Group

	mu      sync.Mutex
	ws      *websocket.Conn
	state   Status
	stopped bool
	// epoch ties read loops to the socket they were started for, so a
	// stale loop cannot tear down a newer connection.
	epoch int

	// last requested topics, replayed after every reconnect because the
	// server forgets subscriptions when the socket drops.
	lastRoom string
	lastGame string
	// topics actually subscribed on the current socket.
	subRoom string
	subGame string
}

func newConn(url, roomCode string, identity Identity, log *zap.Logger) *Conn {
	return &Conn{
		url:      url,
		roomCode: roomCode,
		identity: identity,
		log:      log.With(zap.String("room", roomCode), zap.String("user", identity.Username)),
		handlers: newHandlerSet(log),
		state:    StatusDisconnected,
		lastRoom: roomCode,
	}
}

// RegisterHandlers attaches one consumer's callbacks and returns a function
// that detaches only them.
func (c *Conn) RegisterHandlers(hs Handlers) func() {
	return c.handlers.add(hs)
}

func (c *Conn) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start establishes the connection if it is not already up. Concurrent
// calls collapse into the single in-flight attempt.
func (c *Conn) Start(ctx context.Context) error {
	_, err, _ := c.sf.Do("start", func() (any, error) {
		return nil, c.start(ctx)
	})
	return err
}

func (c *Conn) start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StatusConnected, StatusReconnecting:
		c.mu.Unlock()
		return nil
	}
	c.state = StatusConnecting
	c.stopped = false
	c.mu.Unlock()
	c.handlers.fireStatus(StatusConnecting, nil)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	ws, _, err := websocket.Dial(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		c.mu.Lock()
		c.state = StatusDisconnected
		c.mu.Unlock()
		c.handlers.fireStatus(StatusDisconnected, err)
		return fmt.Errorf("%w: %v", game.ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.state = StatusConnected
	c.epoch++
	epoch := c.epoch
	c.subRoom = ""
	c.subGame = ""
	lastGame := c.lastGame
	c.mu.Unlock()
	c.handlers.fireStatus(StatusConnected, nil)

	// Announce presence once per connection; the server treats JoinRoom as
	// the room subscription too.
	if err := c.write(ctx, ws, ClientEnvelope{Type: OpJoinRoom, RoomCode: c.roomCode, Username: c.identity.Username}); err != nil {
		c.log.Warn("join room failed", zap.Error(err))
	} else {
		c.mu.Lock()
		c.subRoom = c.roomCode
		c.mu.Unlock()
	}
	if lastGame != "" {
		if err := c.write(ctx, ws, ClientEnvelope{Type: OpSubscribeGame, GameID: lastGame}); err == nil {
			c.mu.Lock()
			c.subGame = lastGame
			c.mu.Unlock()
		}
	}

	go c.readLoop(ws, epoch)
	return nil
}

// Stop tears down the transport. Handler registrations survive, so a later
// Start resumes delivery to the same consumers.
func (c *Conn) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.state = StatusDisconnected
	c.epoch++
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}
	c.handlers.fireStatus(StatusDisconnected, nil)
}

// SubscribeRoom remembers the room topic and subscribes if connected.
// Subscribing to the already-subscribed topic is a no-op.
func (c *Conn) SubscribeRoom(ctx context.Context, roomCode string) error {
	c.mu.Lock()
	c.lastRoom = roomCode
	ws := c.ws
	needed := c.state == StatusConnected && c.subRoom != roomCode
	if needed {
		c.subRoom = roomCode
	}
	c.mu.Unlock()
	if !needed {
		return nil
	}
	if err := c.write(ctx, ws, ClientEnvelope{Type: OpSubscribeRoom, RoomCode: roomCode}); err != nil {
		c.mu.Lock()
		if c.subRoom == roomCode {
			c.subRoom = ""
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// SubscribeGame remembers the game topic and subscribes if connected.
func (c *Conn) SubscribeGame(ctx context.Context, gameID string) error {
	c.mu.Lock()
	c.lastGame = gameID
	ws := c.ws
	needed := c.state == StatusConnected && c.subGame != gameID
	if needed {
		c.subGame = gameID
	}
	c.mu.Unlock()
	if !needed {
		return nil
	}
	if err := c.write(ctx, ws, ClientEnvelope{Type: OpSubscribeGame, GameID: gameID}); err != nil {
		c.mu.Lock()
		if c.subGame == gameID {
			c.subGame = ""
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Conn) UnsubscribeGame(ctx context.Context, gameID string) error {
	c.mu.Lock()
	if c.lastGame == gameID {
		c.lastGame = ""
	}
	ws := c.ws
	needed := c.state == StatusConnected && c.subGame == gameID
	if needed {
		c.subGame = ""
	}
	c.mu.Unlock()
	if !needed {
		return nil
	}
	return c.write(ctx, ws, ClientEnvelope{Type: OpUnsubscribeGame, GameID: gameID})
}

// SendChat fails fast when disconnected; callers surface the failure
// instead of queueing messages silently.
func (c *Conn) SendChat(ctx context.Context, roomCode, sender, text string) error {
	ws, err := c.connected()
	if err != nil {
		return err
	}
	return c.write(ctx, ws, ClientEnvelope{Type: OpSendChatMessage, RoomCode: roomCode, Username: sender, Text: text})
}

func (c *Conn) LeaveGame(ctx context.Context, gameID string) error {
	c.mu.Lock()
	if c.lastGame == gameID {
		c.lastGame = ""
	}
	if c.subGame == gameID {
		c.subGame = ""
	}
	c.mu.Unlock()

	ws, err := c.connected()
	if err != nil {
		return err
	}
	return c.write(ctx, ws, ClientEnvelope{Type: OpLeaveGame, GameID: gameID})
}

func (c *Conn) RequestRoomReset(ctx context.Context, roomCode string) error {
	ws, err := c.connected()
	if err != nil {
		return err
	}
	return c.write(ctx, ws, ClientEnvelope{Type: OpRequestRoomReset, RoomCode: roomCode, Username: c.identity.Username})
}

func (c *Conn) connected() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatusConnected || c.ws == nil {
		return nil, game.ErrNotConnected
	}
	return c.ws, nil
}

func (c *Conn) write(ctx context.Context, ws *websocket.Conn, env ClientEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, payload)
}

func (c *Conn) readLoop(ws *websocket.Conn, epoch int) {
	for {
		_, data, err := ws.Read(context.Background())
		if err != nil {
			c.onReadFailure(epoch, err)
			return
		}
		var env ServerEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("bad push payload", zap.Error(err))
			continue
		}
		c.handlers.dispatch(env)
	}
}

func (c *Conn) onReadFailure(epoch int, cause error) {
	c.mu.Lock()
	if c.stopped || c.epoch != epoch {
		// Stop() or a newer connection already owns the lifecycle.
		c.mu.Unlock()
		return
	}
	c.state = StatusReconnecting
	c.ws = nil
	c.mu.Unlock()

	c.log.Info("push channel dropped, reconnecting", zap.Error(cause))
	c.handlers.fireStatus(StatusReconnecting, cause)
	c.reconnect(epoch, cause)
}

// reconnect walks the backoff schedule. On success it replays the last
// room and game subscriptions before handing the socket to a new read
// loop; the server has no memory of subscriptions across a drop.
func (c *Conn) reconnect(prevEpoch int, cause error) {
	for _, delay := range reconnectDelays {
		if delay > 0 {
			time.Sleep(delay)
		}

		c.mu.Lock()
		if c.stopped || c.epoch != prevEpoch {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		ws, _, err := websocket.Dial(dialCtx, c.url, nil)
		cancel()
		if err != nil {
			c.log.Debug("reconnect attempt failed", zap.Error(err))
			continue
		}

		c.mu.Lock()
		if c.stopped || c.epoch != prevEpoch {
			c.mu.Unlock()
			_ = ws.Close(websocket.StatusNormalClosure, "superseded")
			return
		}
		c.ws = ws
		c.state = StatusConnected
		c.epoch++
		epoch := c.epoch
		room, gameID := c.lastRoom, c.lastGame
		c.subRoom = ""
		c.subGame = ""
		c.mu.Unlock()

		ctx := context.Background()
		if room != "" {
			if err := c.write(ctx, ws, ClientEnvelope{Type: OpSubscribeRoom, RoomCode: room}); err == nil {
				c.mu.Lock()
				c.subRoom = room
				c.mu.Unlock()
			} else {
				c.log.Warn("room resubscribe failed", zap.Error(err))
			}
		}
		if gameID != "" {
			if err := c.write(ctx, ws, ClientEnvelope{Type: OpSubscribeGame, GameID: gameID}); err == nil {
				c.mu.Lock()
				c.subGame = gameID
				c.mu.Unlock()
			} else {
				c.log.Warn("game resubscribe failed", zap.Error(err))
			}
		}

		c.handlers.fireStatus(StatusConnected, nil)
		go c.readLoop(ws, epoch)
		return
	}

	c.mu.Lock()
	c.state = StatusDisconnected
	c.mu.Unlock()
	c.log.Warn("reconnect schedule exhausted", zap.Error(cause))
	c.handlers.fireStatus(StatusDisconnected, cause)
}
