package game

import (
	"fmt"
	"time"
)

// BoardSize is the fixed number of cup slots on the board.
const BoardSize = 6

type Status string

const (
	StatusSetup      Status = "Setup"
	StatusInProgress Status = "InProgress"
	StatusFinished   Status = "Finished"
)

// GameState is the authoritative snapshot the server sends, either as an
// HTTP response body or as the payload of a StateUpdated push. It is always
// replaced wholesale, never patched field by field.
type GameState struct {
	GameID          string   `json:"gameId"`
	RoomCode        string   `json:"roomCode"`
	Status          Status   `json:"status"`
	Cups            []string `json:"cups"`
	Hits            int      `json:"hits"`
	TotalMoves      int      `json:"totalMoves"`
	CurrentPlayerID *int     `json:"currentPlayerId"`
	PlayerOrder     []int    `json:"playerOrder"`
	TurnEndsAtUTC   string   `json:"turnEndsAtUtc"`
	TargetPattern   []string `json:"targetPattern"`
	AvailableColors []string `json:"availableColors"`
}

// IsTurnOf reports whether it is playerID's turn in this snapshot.
func (s *GameState) IsTurnOf(playerID int) bool {
	return s != nil && s.CurrentPlayerID != nil && *s.CurrentPlayerID == playerID
}

// TurnDeadline parses TurnEndsAtUtc. The zero time is returned when the
// field is empty or unparseable.
func (s *GameState) TurnDeadline() time.Time {
	if s == nil {
		return time.Time{}
	}
	return ParseUTC(s.TurnEndsAtUTC)
}

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type Room struct {
	Code         string `json:"code"`
	LeaderID     int    `json:"leaderId"`
	Users        []User `json:"users"`
	ActiveGameID string `json:"activeGameId,omitempty"`
}

type JoinRoomResult struct {
	Code     string `json:"code"`
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	Users    []User `json:"users"`
}

type ChatMessage struct {
	RoomCode string `json:"roomCode"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
	SentAt   string `json:"sentAt,omitempty"`
}

type StartGameRequest struct {
	RoomCode string `json:"roomCode"`
}

type PlaceInitialRequest struct {
	PlayerID int      `json:"playerId"`
	Cups     []string `json:"cups"`
}

type SwapRequest struct {
	PlayerID  int `json:"playerId"`
	FromIndex int `json:"fromIndex"`
	ToIndex   int `json:"toIndex"`
}

// ParseUTC parses a server timestamp. The backend sometimes omits the zone
// suffix on UTC timestamps, so a bare timestamp is treated as UTC rather
// than local time.
func ParseUTC(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw+"Z"); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// HasDuplicateColors reports whether any non-empty color appears more than
// once. Empty slots are represented as "" and ignored.
func HasDuplicateColors(cups []string) bool {
	seen := make(map[string]bool, len(cups))
	for _, c := range cups {
		if c == "" {
			continue
		}
		if seen[c] {
			return true
		}
		seen[c] = true
	}
	return false
}

// ValidateSwap checks swap indices client-side before any network call.
func ValidateSwap(from, to int) error {
	if from < 0 || from >= BoardSize {
		return ValidationError{Field: "fromIndex", Reason: fmt.Sprintf("index %d out of range", from)}
	}
	if to < 0 || to >= BoardSize {
		return ValidationError{Field: "toIndex", Reason: fmt.Sprintf("index %d out of range", to)}
	}
	if from == to {
		return ValidationError{Field: "toIndex", Reason: "cannot swap a slot with itself"}
	}
	return nil
}
