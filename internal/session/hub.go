package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/sharpness-board/internal/analysis"
	"github.com/park285/sharpness-board/internal/msgcat"
)

const (
	DefaultIdleTTL       = 24 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Dropper is told when a session goes away so its watchers can be released.
type Dropper interface {
	Drop(sessionID string)
}

type HubConfig struct {
	Analyzer      analysis.Service
	Policy        analysis.StalePolicy
	Messages      *msgcat.Catalog
	Publisher     Publisher
	Logger        *zap.Logger
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// Hub owns every live session and evicts the idle ones.
type Hub struct {
	cfg    HubConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Messages == nil {
		cfg.Messages = msgcat.MustDefault()
	}
	h := &Hub{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	h.wg.Add(1)
	go h.sweep()
	return h
}

func (h *Hub) sweep() {
	defer h.wg.Done()
	t := time.NewTicker(h.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case now := <-t.C:
			if n := h.evictIdle(now); n > 0 {
				h.logger.Info("sessions_evicted", zap.Int("count", n), zap.Int("remaining", h.Len()))
			}
		}
	}
}

// Create starts a fresh session with a random id.
func (h *Hub) Create() *Session {
	id := uuid.NewString()
	s := New(Config{
		ID:        id,
		Analyzer:  h.cfg.Analyzer,
		Policy:    h.cfg.Policy,
		Messages:  h.cfg.Messages,
		Publisher: h.cfg.Publisher,
		Logger:    h.logger,
	})
	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	h.logger.Info("session_created", zap.String("session_id", id))
	return s
}

func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) evictIdle(now time.Time) int {
	var idle []*Session
	h.mu.Lock()
	for id, s := range h.sessions {
		if now.Sub(s.LastSeen()) > h.cfg.IdleTTL {
			idle = append(idle, s)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()
	for _, s := range idle {
		h.release(s)
	}
	return len(idle)
}

func (h *Hub) release(s *Session) {
	s.Close()
	if d, ok := h.cfg.Publisher.(Dropper); ok {
		d.Drop(s.ID())
	}
}

// Close stops eviction and closes every session.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()
	h.mu.Lock()
	all := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		all = append(all, s)
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	for _, s := range all {
		h.release(s)
	}
}
