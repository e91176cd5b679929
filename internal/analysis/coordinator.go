// Package analysis talks to the remote sharpness service and tracks the
// loading, error and result state of the two kinds of requests.
package analysis

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "error"
	default:
		return "idle"
	}
}

type Kind int

const (
	PositionKind Kind = iota
	GameKind
)

func (k Kind) String() string {
	if k == GameKind {
		return "game"
	}
	return "position"
}

// StalePolicy decides what happens when an older request completes after
// a newer one of the same kind was dispatched.
type StalePolicy string

const (
	// DropStale discards completions that are not from the latest request.
	DropStale StalePolicy = "drop-stale"
	// LastCompletion applies every completion in arrival order.
	LastCompletion StalePolicy = "last-completion"
)

func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DropStale, nil
	case DropStale, LastCompletion:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stale policy %q", s)
	}
}

// Ticket identifies one dispatched request.
type Ticket struct {
	Kind Kind
	Seq  uint64
	ID   uuid.UUID
}

// Slot is the state of one request kind. Value is meaningful only when
// Status is Ready and Err only when Status is Failed.
type Slot[T any] struct {
	Status Status
	Value  T
	Err    string
	latest uint64
}

func (s *Slot[T]) begin(seq uint64) {
	var zero T
	s.Status, s.Value, s.Err, s.latest = Loading, zero, "", seq
}

func (s *Slot[T]) accepts(t Ticket, policy StalePolicy) bool {
	return policy == LastCompletion || t.Seq == s.latest
}

func (s *Slot[T]) succeed(v T) {
	s.Status, s.Value, s.Err = Ready, v, ""
}

func (s *Slot[T]) fail(err error) {
	var zero T
	s.Status, s.Value, s.Err = Failed, zero, err.Error()
}

func (s *Slot[T]) clear() {
	var zero T
	s.Status, s.Value, s.Err, s.latest = Idle, zero, "", 0
}

// GameResult is a ready whole-game analysis with its chart series.
type GameResult struct {
	Plies []Score
	Chart []ChartPoint
}

// Coordinator holds response state for position and game analysis. It does
// no I/O and must be driven from a single goroutine.
type Coordinator struct {
	policy   StalePolicy
	seq      uint64
	Position Slot[Score]
	Game     Slot[GameResult]
}

func NewCoordinator(policy StalePolicy) *Coordinator {
	if policy == "" {
		policy = DropStale
	}
	return &Coordinator{policy: policy}
}

func (c *Coordinator) Policy() StalePolicy { return c.policy }

func (c *Coordinator) next(kind Kind) Ticket {
	c.seq++
	return Ticket{Kind: kind, Seq: c.seq, ID: uuid.New()}
}

// BeginPosition marks a position request in flight and clears its old result.
func (c *Coordinator) BeginPosition() Ticket {
	t := c.next(PositionKind)
	c.Position.begin(t.Seq)
	return t
}

// BeginGame marks a transcript request in flight and clears its old result.
func (c *Coordinator) BeginGame() Ticket {
	t := c.next(GameKind)
	c.Game.begin(t.Seq)
	return t
}

// CompletePosition records the outcome of t. It reports false when the
// completion was discarded as stale.
func (c *Coordinator) CompletePosition(t Ticket, s Score, err error) bool {
	if !c.Position.accepts(t, c.policy) {
		return false
	}
	if err != nil {
		c.Position.fail(err)
		return true
	}
	c.Position.succeed(s)
	return true
}

// CompleteGame records the outcome of t, building the chart on success.
func (c *Coordinator) CompleteGame(t Ticket, g GameAnalysis, err error) bool {
	if !c.Game.accepts(t, c.policy) {
		return false
	}
	if err == nil && len(g.Plies) == 0 {
		err = ErrEmptyAnalysis
	}
	if err != nil {
		c.Game.fail(err)
		return true
	}
	c.Game.succeed(GameResult{Plies: g.Plies, Chart: Series(g.Plies)})
	return true
}

// FailGame turns a ready game result into a failure, used when the returned
// moves cannot be replayed.
func (c *Coordinator) FailGame(err error) {
	c.Game.fail(err)
}

// Clear drops both results. Under DropStale it also orphans in-flight
// requests; under LastCompletion they still land.
func (c *Coordinator) Clear() {
	c.Position.clear()
	c.Game.clear()
}
