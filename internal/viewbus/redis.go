package viewbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/sharpness-board/pkg/boarddto"
)

const (
	defaultPrefix    = "board:view:"
	defaultLatestTTL = 24 * time.Hour
	defaultQueue     = 256
	writeTimeout     = 2 * time.Second
)

// RedisMirror publishes each view on a per-session channel and keeps the
// latest one under a key with a TTL. Writes happen on one goroutine in
// publish order.
type RedisMirror struct {
	rdb    *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	queue  chan boarddto.View
	closed bool
	done   chan struct{}
}

type MirrorOption func(*RedisMirror)

func WithPrefix(p string) MirrorOption {
	return func(m *RedisMirror) {
		if strings.TrimSpace(p) != "" {
			m.prefix = p
		}
	}
}

// WithLatestTTL sets the expiry of the latest-view key. Zero keeps the default.
func WithLatestTTL(d time.Duration) MirrorOption {
	return func(m *RedisMirror) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithQueueSize(n int) MirrorOption {
	return func(m *RedisMirror) {
		if n > 0 {
			m.queue = make(chan boarddto.View, n)
		}
	}
}

// DialRedis connects to redisURL and verifies the connection.
func DialRedis(ctx context.Context, redisURL string, logger *zap.Logger, opts ...MirrorOption) (*RedisMirror, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("redis url required for view mirror")
	}
	o, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisMirror(rdb, logger, opts...), nil
}

// NewRedisMirror takes ownership of rdb and closes it on Close.
func NewRedisMirror(rdb *redis.Client, logger *zap.Logger, opts ...MirrorOption) *RedisMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &RedisMirror{
		rdb:    rdb,
		logger: logger,
		prefix: defaultPrefix,
		ttl:    defaultLatestTTL,
		queue:  make(chan boarddto.View, defaultQueue),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.loop()
	return m
}

func (m *RedisMirror) Channel(sessionID string) string { return m.prefix + sessionID }
func (m *RedisMirror) LatestKey(sessionID string) string {
	return m.prefix + sessionID + ":latest"
}

// Enqueue reports false when the queue is full or the mirror is closed.
func (m *RedisMirror) Enqueue(view boarddto.View) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.queue <- view:
		return true
	default:
		return false
	}
}

func (m *RedisMirror) loop() {
	defer close(m.done)
	for view := range m.queue {
		if err := m.write(view); err != nil {
			m.logger.Warn("view_mirror_write_failed",
				zap.String("session_id", view.SessionID),
				zap.Uint64("version", view.Version),
				zap.Error(err),
			)
		}
	}
}

func (m *RedisMirror) write(view boarddto.View) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err = m.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, m.Channel(view.SessionID), raw)
		p.Set(ctx, m.LatestKey(view.SessionID), raw, m.ttl)
		return nil
	})
	return err
}

// Latest returns the last mirrored view, or nil when none is stored.
func (m *RedisMirror) Latest(ctx context.Context, sessionID string) (*boarddto.View, error) {
	raw, err := m.rdb.Get(ctx, m.LatestKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v boarddto.View
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Close drains queued views and closes the client.
func (m *RedisMirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	<-m.done
	return m.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
