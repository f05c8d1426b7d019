// Package identity persists the local participant identity and the
// per-room active game id across sessions.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	identityFile = "identity.json"
	gamesFile    = "games.json"
)

type Identity struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Valid is the trust gate on stored identity: a non-positive id or blank
// name means the record is discarded, never used.
func (id Identity) Valid() bool {
	return id.ID > 0 && strings.TrimSpace(id.Username) != ""
}

// FileStore keeps the records as JSON files under a config directory.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore uses dir, or the user config dir when dir is empty.
func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "colornodes")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, log: log}, nil
}

// Load returns the stored identity if present and valid. Malformed or
// invalid records are discarded rather than trusted.
func (s *FileStore) Load() (Identity, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, identityFile))
	if err != nil {
		return Identity{}, false
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil || !id.Valid() {
		s.log.Warn("discarding invalid stored identity")
		_ = s.Clear()
		return Identity{}, false
	}
	return id, true
}

func (s *FileStore) Save(id Identity) error {
	if !id.Valid() {
		return os.ErrInvalid
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, identityFile), raw, 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(filepath.Join(s.dir, identityFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RememberGame caches the active game id for a room so a reload can
// rejoin the game in progress.
func (s *FileStore) RememberGame(roomCode, gameID string) error {
	games := s.loadGames()
	games[roomCode] = gameID
	return s.saveGames(games)
}

func (s *FileStore) ActiveGame(roomCode string) (string, bool) {
	gameID, ok := s.loadGames()[roomCode]
	return gameID, ok && gameID != ""
}

// ForgetGame drops a stale cached id, e.g. after the server reports the
// game gone.
func (s *FileStore) ForgetGame(roomCode string) error {
	games := s.loadGames()
	if _, ok := games[roomCode]; !ok {
		return nil
	}
	delete(games, roomCode)
	return s.saveGames(games)
}

func (s *FileStore) loadGames() map[string]string {
	raw, err := os.ReadFile(filepath.Join(s.dir, gamesFile))
	if err != nil {
		return map[string]string{}
	}
	var games map[string]string
	if err := json.Unmarshal(raw, &games); err != nil || games == nil {
		return map[string]string{}
	}
	return games
}

func (s *FileStore) saveGames(games map[string]string) error {
	raw, err := json.Marshal(games)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, gamesFile), raw, 0o600)
}
