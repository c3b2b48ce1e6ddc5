package session

import (
	"testing"
	"time"

	"github.com/steward-agent/steward/internal/events"
)

func testManager() *Manager {
	return NewManager(func(sessionID string, bus *events.Bus) *Orchestrator {
		return New(Config{
			Client:    &fakeClient{responses: []string{"ok"}},
			SessionID: sessionID,
			Bus:       bus,
		})
	})
}

func TestManagerCreateAndGet(t *testing.T) {
	m := testManager()
	defer m.Close()

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("empty session id")
	}
	if s.Orchestrator.ID() != s.ID {
		t.Errorf("orchestrator id %q != session id %q", s.Orchestrator.ID(), s.ID)
	}

	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Errorf("Get(%q) = %v, %v", s.ID, got, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get of unknown id should fail")
	}
}

func TestManagerDisposeClosesBus(t *testing.T) {
	m := testManager()
	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ch := s.Bus.Subscribe(1)
	m.Dispose(s.ID)

	if _, ok := m.Get(s.ID); ok {
		t.Error("session still registered after dispose")
	}
	if _, open := <-ch; open {
		t.Error("bus subscriber not closed on dispose")
	}

	m.Dispose(s.ID) // no-op
}

func TestManagerListOldestFirst(t *testing.T) {
	m := testManager()
	defer m.Close()

	a, _ := m.Create()
	time.Sleep(time.Millisecond)
	b, _ := m.Create()

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List = %d sessions, want 2", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("List order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, a.ID, b.ID)
	}
}

func TestManagerClose(t *testing.T) {
	m := testManager()
	s, _ := m.Create()
	ch := s.Bus.Subscribe(1)

	m.Close()
	if len(m.List()) != 0 {
		t.Error("sessions remain after Close")
	}
	if _, open := <-ch; open {
		t.Error("bus not closed")
	}
}
