// Package registry keeps device configurations and live sessions.
package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Entry is a point-in-time view of one registry slot
type Entry struct {
	ID        string
	Config    models.DeviceConfig
	Session   transport.Session
	SessionID uuid.UUID
}

// Connected reports whether the entry had a live session
func (e Entry) Connected() bool {
	return e.Session != nil
}

type liveSession struct {
	session transport.Session
	id      uuid.UUID
}

// Registry maps device identifiers to their recorded configuration and, while
// connected, their live session. Every key in sessions is also in configs.
// The maps are guarded by mu; per-device operation ordering is provided
// separately by Lock.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]models.DeviceConfig
	sessions map[string]liveSession

	locksMu sync.Mutex
	locks   map[string]*fifoLock
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		configs:  make(map[string]models.DeviceConfig),
		sessions: make(map[string]liveSession),
		locks:    make(map[string]*fifoLock),
	}
}

// Put inserts or replaces the configuration for id. A live session is left untouched.
func (r *Registry) Put(id string, cfg models.DeviceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[id] = cfg
}

// GetConfig returns the configuration recorded for id
func (r *Registry) GetConfig(id string) (models.DeviceConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	return cfg, ok
}

// GetSession returns the live session for id
func (r *Registry) GetSession(id string) (transport.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.sessions[id]
	return ls.session, ok
}

// Get returns the full entry for id. ok is false for unknown ids.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return Entry{}, false
	}
	ls := r.sessions[id]
	return Entry{ID: id, Config: cfg, Session: ls.session, SessionID: ls.id}, true
}

// SetSession stores the live session for id and returns the identifier
// assigned to it. Ids without a recorded configuration are rejected.
func (r *Registry) SetSession(id string, s transport.Session) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[id]; !ok {
		return uuid.Nil, models.ErrUnknownConfig
	}
	sid := uuid.New()
	r.sessions[id] = liveSession{session: s, id: sid}
	return sid, nil
}

// RemoveSession drops the live session for id, if any
func (r *Registry) RemoveSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListConnected returns a snapshot of every entry with a live session, sorted by id
func (r *Registry) ListConnected() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.sessions))
	for id, ls := range r.sessions {
		entries = append(entries, Entry{ID: id, Config: r.configs[id], Session: ls.session, SessionID: ls.id})
	}
	sortEntries(entries)
	return entries
}

// ListKnown returns a snapshot of every recorded configuration, sorted by id
func (r *Registry) ListKnown() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.configs))
	for id, cfg := range r.configs {
		ls := r.sessions[id]
		entries = append(entries, Entry{ID: id, Config: cfg, Session: ls.session, SessionID: ls.id})
	}
	sortEntries(entries)
	return entries
}

// ConnectedCount returns the number of live sessions
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Lock acquires the per-device lock for id and returns its release func.
// Callers for the same id are served in arrival order. The lock entry is
// dropped once nobody holds or waits for it.
func (r *Registry) Lock(id string) (unlock func()) {
	r.locksMu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &fifoLock{}
		r.locks[id] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.Unlock()
			r.release(id, l)
		})
	}
}

func (r *Registry) release(id string, l *fifoLock) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l.refs--
	if l.refs == 0 && r.locks[id] == l {
		delete(r.locks, id)
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
