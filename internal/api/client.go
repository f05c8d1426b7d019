package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/colornodes/client-go/internal/game"
)

const defaultTimeout = 10 * time.Second

// Client talks to the Room/Game REST API. Every call carries an explicit
// per-request timeout unless the caller's context already has a deadline.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     log,
	}
}

func (c *Client) StartGame(ctx context.Context, roomCode string) (game.GameState, error) {
	var out game.GameState
	err := c.do(ctx, http.MethodPost, "/game/start", game.StartGameRequest{RoomCode: roomCode}, &out)
	return out, err
}

func (c *Client) GetGame(ctx context.Context, gameID string) (game.GameState, error) {
	var out game.GameState
	err := c.do(ctx, http.MethodGet, "/game/"+gameID, nil, &out)
	return out, err
}

func (c *Client) PlaceInitial(ctx context.Context, gameID string, req game.PlaceInitialRequest) (game.GameState, error) {
	var out game.GameState
	err := c.do(ctx, http.MethodPost, "/game/"+gameID+"/place-initial", req, &out)
	return out, err
}

func (c *Client) Swap(ctx context.Context, gameID string, req game.SwapRequest) (game.GameState, error) {
	var out game.GameState
	err := c.do(ctx, http.MethodPost, "/game/"+gameID+"/swap", req, &out)
	return out, err
}

// Tick asks the server to reconcile turn expiry. The response is the fresh
// authoritative state whether or not a turn actually advanced.
func (c *Client) Tick(ctx context.Context, gameID string) (game.GameState, error) {
	var out game.GameState
	err := c.do(ctx, http.MethodPost, "/game/"+gameID+"/tick", struct{}{}, &out)
	return out, err
}

func (c *Client) CreateRoom(ctx context.Context, username string) (game.Room, error) {
	var out game.Room
	err := c.do(ctx, http.MethodPost, "/room/create", map[string]string{"username": username}, &out)
	return out, err
}

func (c *Client) JoinRoom(ctx context.Context, username, roomCode string) (game.JoinRoomResult, error) {
	var out game.JoinRoomResult
	err := c.do(ctx, http.MethodPost, "/room/join/"+username+"/"+roomCode, nil, &out)
	return out, err
}

func (c *Client) LeaveRoom(ctx context.Context, roomCode string, userID int) error {
	return c.do(ctx, http.MethodPost, "/room/leave/"+roomCode, map[string]int{"userId": userID}, nil)
}

func (c *Client) GetRoom(ctx context.Context, roomCode string) (game.Room, error) {
	var out game.Room
	err := c.do(ctx, http.MethodGet, "/room/by-code/"+roomCode, nil, &out)
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, username string) (game.User, error) {
	var out game.User
	err := c.do(ctx, http.MethodPost, "/users", map[string]string{"username": username}, &out)
	return out, err
}

func (c *Client) GetUser(ctx context.Context, id int) (game.User, error) {
	var out game.User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", id), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.asError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) asError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reason := serverReason(raw)

	c.log.Debug("api request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("reason", reason))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, game.ErrNotFound)
	case resp.StatusCode < 500:
		return game.MutationRejectedError{Status: resp.StatusCode, Reason: reason}
	default:
		return fmt.Errorf("%s %s: server error %d: %s", method, path, resp.StatusCode, reason)
	}
}

// serverReason extracts a human-readable message from an error body, which
// the server sends either as {"error": "..."} or as plain text.
func serverReason(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
