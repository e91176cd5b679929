// Package viewbus fans view snapshots out to live watchers and, when
// configured, to a Redis mirror.
package viewbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/sharpness-board/pkg/boarddto"
)

// Mirror receives every published view. Enqueue must not block.
type Mirror interface {
	Enqueue(view boarddto.View) bool
	Close() error
}

// Bus delivers views per session. A slow watcher misses views rather than
// stalling the publisher.
type Bus struct {
	mu       sync.Mutex
	watchers map[string]map[chan boarddto.View]struct{}
	mirror   Mirror
	logger   *zap.Logger
	closed   bool
}

type Option func(*Bus)

func WithMirror(m Mirror) Option {
	return func(b *Bus) { b.mirror = m }
}

func New(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{watchers: make(map[string]map[chan boarddto.View]struct{}), logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a watcher for sessionID. The returned func removes it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(sessionID string, buffer int) (<-chan boarddto.View, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan boarddto.View, buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := b.watchers[sessionID]
	if !ok {
		set = make(map[chan boarddto.View]struct{})
		b.watchers[sessionID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(sessionID, ch) })
	}
}

func (b *Bus) remove(sessionID string, ch chan boarddto.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.watchers[sessionID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.watchers, sessionID)
	}
}

// Publish sends view to the session's watchers and the mirror.
func (b *Bus) Publish(view boarddto.View) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for ch := range b.watchers[view.SessionID] {
		select {
		case ch <- view:
		default:
			b.logger.Debug("view_dropped_slow_watcher", zap.String("session_id", view.SessionID))
		}
	}
	mirror := b.mirror
	b.mu.Unlock()

	if mirror != nil && !mirror.Enqueue(view) {
		b.logger.Warn("view_mirror_queue_full",
			zap.String("session_id", view.SessionID),
			zap.Uint64("version", view.Version),
		)
	}
}

// Drop disconnects every watcher of sessionID.
func (b *Bus) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.watchers[sessionID] {
		close(ch)
	}
	delete(b.watchers, sessionID)
}

func (b *Bus) Watchers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers[sessionID])
}

// Close disconnects all watchers and flushes the mirror.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, set := range b.watchers {
		for ch := range set {
			close(ch)
		}
		delete(b.watchers, id)
	}
	mirror := b.mirror
	b.mu.Unlock()

	if mirror != nil {
		return mirror.Close()
	}
	return nil
}
