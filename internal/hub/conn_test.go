package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/colornodes/client-go/internal/game"
)

// fakeHub is the accept side of the push channel, recording every op each
// connection sends so subscribe replay can be asserted precisely.
type fakeHub struct {
	mu    sync.Mutex
	conns []*fakeHubConn
}

type fakeHubConn struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	msgs []ClientEnvelope
}

func (c *fakeHubConn) ops() []ClientEnvelope {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ClientEnvelope(nil), c.msgs...)
}

func (c *fakeHubConn) count(op OpKind) int {
	n := 0
	for _, m := range c.ops() {
		if m.Type == op {
			n++
		}
	}
	return n
}

func (h *fakeHub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn := &fakeHubConn{ws: ws}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		for {
			_, data, err := ws.Read(r.Context())
			if err != nil {
				return
			}
			var env ClientEnvelope
			if json.Unmarshal(data, &env) == nil {
				conn.mu.Lock()
				conn.msgs = append(conn.msgs, env)
				conn.mu.Unlock()
			}
		}
	}
}

func (h *fakeHub) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *fakeHub) conn(i int) *fakeHubConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.conns) {
		return nil
	}
	return h.conns[i]
}

func (h *fakeHub) dropAll() {
	h.mu.Lock()
	conns := append([]*fakeHubConn(nil), h.conns...)
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close(websocket.StatusGoingAway, "server restart")
	}
}

func (h *fakeHub) push(t *testing.T, env ServerEnvelope) {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	// The accept handler registers the connection asynchronously.
	require.Eventually(t, func() bool { return h.connCount() > 0 }, 2*time.Second, 5*time.Millisecond)
	h.mu.Lock()
	last := h.conns[len(h.conns)-1]
	h.mu.Unlock()
	require.NoError(t, last.ws.Write(context.Background(), websocket.MessageText, payload))
}

func newTestHub(t *testing.T) (*fakeHub, *Registry) {
	t.Helper()
	fh := &fakeHub{}
	srv := httptest.NewServer(fh.handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return fh, NewRegistry(wsURL, nil)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func TestRegistryReturnsSameInstance(t *testing.T) {
	_, reg := newTestHub(t)
	id := Identity{UserID: 7, Username: "kary"}

	c1 := reg.GetOrCreate("ABCD", id)
	c2 := reg.GetOrCreate("ABCD", id)
	require.Same(t, c1, c2)

	c3 := reg.GetOrCreate("ABCD", Identity{UserID: 8, Username: "elein"})
	require.NotSame(t, c1, c3, "distinct identity gets its own connection")

	reg.Dispose("ABCD", id)
	c4 := reg.GetOrCreate("ABCD", id)
	require.NotSame(t, c1, c4, "dispose evicts so a rejoin starts fresh")
}

func TestStartJoinsRoomOnce(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})
	t.Cleanup(conn.Stop)

	// Concurrent starts collapse into one dial.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Start(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, StatusConnected, conn.State())
	waitFor(t, func() bool { return fh.connCount() == 1 && fh.conn(0).count(OpJoinRoom) == 1 },
		"one transport, exactly one JoinRoom")
	require.Equal(t, "ABCD", fh.conn(0).ops()[0].RoomCode)
}

func TestSubscribeGameIsIdempotent(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})
	t.Cleanup(conn.Stop)
	require.NoError(t, conn.Start(context.Background()))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.SubscribeGame(ctx, "g1"))
	}
	waitFor(t, func() bool { return fh.conn(0).count(OpSubscribeGame) == 1 },
		"repeated subscribes collapse to one wire op")

	require.NoError(t, conn.UnsubscribeGame(ctx, "g1"))
	require.NoError(t, conn.SubscribeGame(ctx, "g1"))
	waitFor(t, func() bool { return fh.conn(0).count(OpSubscribeGame) == 2 },
		"resubscribing after unsubscribe goes back on the wire")
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})
	t.Cleanup(conn.Stop)

	var mu sync.Mutex
	var statuses []Status
	conn.RegisterHandlers(Handlers{
		OnConnStatus: func(s Status, _ error) {
			mu.Lock()
			statuses = append(statuses, s)
			mu.Unlock()
		},
	})

	require.NoError(t, conn.Start(context.Background()))
	require.NoError(t, conn.SubscribeGame(context.Background(), "g1"))
	waitFor(t, func() bool { return fh.conn(0).count(OpSubscribeGame) == 1 }, "initial game subscribe")

	fh.dropAll()

	waitFor(t, func() bool { return fh.connCount() == 2 }, "client reconnected")
	second := fh.conn(1)
	waitFor(t, func() bool {
		return second.count(OpSubscribeRoom) == 1 && second.count(OpSubscribeGame) == 1
	}, "room and game topics replayed exactly once each")
	require.Equal(t, 0, second.count(OpJoinRoom), "reconnect does not re-announce the player")

	for _, op := range second.ops() {
		switch op.Type {
		case OpSubscribeRoom:
			require.Equal(t, "ABCD", op.RoomCode)
		case OpSubscribeGame:
			require.Equal(t, "g1", op.GameID)
		}
	}

	waitFor(t, func() bool { return conn.State() == StatusConnected }, "settled connected")
	mu.Lock()
	defer mu.Unlock()
	require.Subset(t, statuses, []Status{StatusConnecting, StatusConnected, StatusReconnecting})
}

func TestSendChatWhileDisconnected(t *testing.T) {
	_, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})

	err := conn.SendChat(context.Background(), "ABCD", "kary", "hola")
	require.ErrorIs(t, err, game.ErrNotConnected)
}

func TestSendChatWhileConnected(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})
	t.Cleanup(conn.Stop)
	require.NoError(t, conn.Start(context.Background()))

	require.NoError(t, conn.SendChat(context.Background(), "ABCD", "kary", "hola"))
	waitFor(t, func() bool { return fh.conn(0).count(OpSendChatMessage) == 1 }, "chat op sent")
	for _, op := range fh.conn(0).ops() {
		if op.Type == OpSendChatMessage {
			require.Equal(t, "hola", op.Text)
		}
	}
}

func TestHandlerFanOutAndUnregister(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})
	t.Cleanup(conn.Stop)

	first := make(chan game.GameState, 4)
	second := make(chan game.GameState, 4)
	unregisterFirst := conn.RegisterHandlers(Handlers{OnStateUpdated: func(s game.GameState) { first <- s }})
	conn.RegisterHandlers(Handlers{OnStateUpdated: func(s game.GameState) { second <- s }})

	require.NoError(t, conn.Start(context.Background()))

	state := game.GameState{GameID: "g1", Status: game.StatusInProgress, Cups: make([]string, game.BoardSize)}
	fh.push(t, ServerEnvelope{Type: EventStateUpdated, State: &state})

	require.Equal(t, "g1", (<-first).GameID)
	require.Equal(t, "g1", (<-second).GameID)

	unregisterFirst()
	fh.push(t, ServerEnvelope{Type: EventStateUpdated, State: &state})

	require.Equal(t, "g1", (<-second).GameID)
	select {
	case <-first:
		t.Fatal("unregistered handler still received an event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestForceRejoinIsADistinctEvent(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})
	t.Cleanup(conn.Stop)

	rejoin := make(chan string, 1)
	states := make(chan game.GameState, 1)
	conn.RegisterHandlers(Handlers{
		OnForceRejoin:  func(rc string) { rejoin <- rc },
		OnStateUpdated: func(s game.GameState) { states <- s },
	})
	require.NoError(t, conn.Start(context.Background()))

	fh.push(t, ServerEnvelope{Type: EventForceRejoin, RoomCode: "ABCD"})

	require.Equal(t, "ABCD", <-rejoin)
	select {
	case <-states:
		t.Fatal("force-rejoin must not be folded into state updates")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopThenRestart(t *testing.T) {
	fh, reg := newTestHub(t)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})

	events := make(chan string, 4)
	conn.RegisterHandlers(Handlers{OnPlayerJoined: func(u string) { events <- u }})

	require.NoError(t, conn.Start(context.Background()))
	conn.Stop()
	require.Equal(t, StatusDisconnected, conn.State())

	// Handler registrations survive an explicit stop.
	require.NoError(t, conn.Start(context.Background()))
	t.Cleanup(conn.Stop)
	waitFor(t, func() bool { return fh.connCount() == 2 }, "fresh transport on restart")

	fh.push(t, ServerEnvelope{Type: EventPlayerJoined, Username: "elein"})
	require.Equal(t, "elein", <-events)
}

func TestStartFailsAgainstDeadServer(t *testing.T) {
	fh := &fakeHub{}
	srv := httptest.NewServer(fh.handler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	reg := NewRegistry(wsURL, nil)
	conn := reg.GetOrCreate("ABCD", Identity{UserID: 7, Username: "kary"})

	err := conn.Start(context.Background())
	require.ErrorIs(t, err, game.ErrConnectionFailed)
	require.Equal(t, StatusDisconnected, conn.State())
}
