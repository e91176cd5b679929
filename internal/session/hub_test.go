package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/sharpness-board/pkg/boarddto"
)

type droppingPublisher struct {
	mu      sync.Mutex
	dropped []string
}

func (p *droppingPublisher) Publish(boarddto.View) {}

func (p *droppingPublisher) Drop(id string) {
	p.mu.Lock()
	p.dropped = append(p.dropped, id)
	p.mu.Unlock()
}

func TestHubCreateAndGet(t *testing.T) {
	h := NewHub(HubConfig{})
	defer h.Close()
	s := h.Create()
	got, ok := h.Get(s.ID())
	if !ok || got != s {
		t.Fatalf("Get(%s) = %v, %v", s.ID(), got, ok)
	}
	if _, ok := h.Get("missing"); ok {
		t.Fatalf("unexpected session")
	}
	v, err := s.View()
	if err != nil || v.SessionID != s.ID() {
		t.Fatalf("view = %+v err=%v", v, err)
	}
}

func TestHubEvictsIdle(t *testing.T) {
	pub := &droppingPublisher{}
	h := NewHub(HubConfig{Publisher: pub, IdleTTL: time.Hour, SweepInterval: time.Hour})
	defer h.Close()
	idle := h.Create()
	fresh := h.Create()

	idle.lastSeen.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	if n := h.evictIdle(time.Now()); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, ok := h.Get(idle.ID()); ok {
		t.Fatalf("idle session still present")
	}
	if _, ok := h.Get(fresh.ID()); !ok {
		t.Fatalf("fresh session evicted")
	}
	if _, err := idle.View(); !errors.Is(err, ErrClosed) {
		t.Fatalf("evicted session err = %v", err)
	}
	if len(pub.dropped) != 1 || pub.dropped[0] != idle.ID() {
		t.Fatalf("dropped = %v", pub.dropped)
	}
}

func TestHubCloseClosesSessions(t *testing.T) {
	h := NewHub(HubConfig{})
	s := h.Create()
	h.Close()
	if h.Len() != 0 {
		t.Fatalf("len = %d", h.Len())
	}
	if _, err := s.View(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}
