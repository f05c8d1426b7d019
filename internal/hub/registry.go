package hub

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Identity is the locally persisted participant identity a connection is
// keyed on.
type Identity struct {
	UserID   int
	Username string
}

// Registry hands out exactly one live Conn per (room, identity) pair. It
// is an explicit object rather than a package global so callers own its
// lifecycle and tests can run isolated registries.
type Registry struct {
	hubURL string
	log    *zap.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewRegistry(hubURL string, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{hubURL: hubURL, log: log, conns: make(map[string]*Conn)}
}

func connKey(roomCode string, identity Identity) string {
	return fmt.Sprintf("%s::%s", roomCode, identity.Username)
}

// GetOrCreate returns the cached connection for the pair, creating it on
// first use. It never starts the transport; callers do that.
func (r *Registry) GetOrCreate(roomCode string, identity Identity) *Conn {
	key := connKey(roomCode, identity)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[key]; ok {
		return c
	}
	c := newConn(r.hubURL, roomCode, identity, r.log)
	r.conns[key] = c
	return c
}

func (r *Registry) Get(roomCode string, identity Identity) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connKey(roomCode, identity)]
	return c, ok
}

// Dispose stops the transport and evicts the instance, so the next join
// builds a fresh connection instead of resuming a stale one.
func (r *Registry) Dispose(roomCode string, identity Identity) {
	key := connKey(roomCode, identity)
	r.mu.Lock()
	c, ok := r.conns[key]
	delete(r.conns, key)
	r.mu.Unlock()
	if ok {
		c.Stop()
	}
}

// DisposeAll tears down every cached connection, e.g. on process exit.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	clear(r.conns)
	r.mu.Unlock()
	for _, c := range conns {
		c.Stop()
	}
}
