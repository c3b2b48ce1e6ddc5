package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steward-agent/steward/internal/events"
)

// eventBufferSize is the per-session retained event count.
const eventBufferSize = 200

// Session pairs an orchestrator with its event bus.
type Session struct {
	ID           string
	Orchestrator *Orchestrator
	Bus          *events.Bus
	CreatedAt    time.Time
}

// Factory builds an orchestrator for a new session. The registry owns
// session identity and the event bus; the factory wires everything
// else.
type Factory func(sessionID string, bus *events.Bus) *Orchestrator

// Manager is the session registry: explicit create, lookup, and
// dispose. Sessions never expire on their own; a caller that creates
// one disposes it.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
}

// NewManager creates a session registry.
func NewManager(factory Factory) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Create allocates a session with a fresh id and registers it.
func (m *Manager) Create() (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	bus := events.NewBus(eventBufferSize)
	s := &Session{
		ID:           id.String(),
		Orchestrator: m.factory(id.String(), bus),
		Bus:          bus,
		CreatedAt:    time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with the given id, or false.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Dispose removes a session and closes its event bus. Disposing an
// unknown id is a no-op.
func (m *Manager) Dispose(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Bus.Close()
	}
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close disposes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Bus.Close()
	}
}
