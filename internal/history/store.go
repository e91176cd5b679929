// Package history keeps the ordered list of played moves and the cursor
// into it. The displayed position is always derived by replay.
package history

import (
	"errors"
	"fmt"

	"github.com/park285/sharpness-board/internal/engine"
)

var ErrCursorOutOfRange = errors.New("cursor out of range")

// NoMoves is the cursor value for the base position with no plies shown.
const NoMoves = -1

type replayKey struct {
	gen    uint64
	length int
	cursor int
}

// Store is a move log with a cursor. It is not safe for concurrent use;
// callers serialize access through a single owner.
type Store struct {
	base   engine.Position
	moves  []engine.Move
	cursor int
	gen    uint64

	cacheKey replayKey
	cached   engine.Position
	cacheOK  bool
}

// New returns an empty store rooted at base. A zero base means the standard start.
func New(base engine.Position) *Store {
	if base.IsZero() {
		base = engine.Initial()
	}
	return &Store{base: base, cursor: NoMoves}
}

// Append plays req against the displayed position. Plies beyond the cursor
// are discarded first, so playing from a scrubbed-back position starts a new
// line. On error the store is unchanged.
func (s *Store) Append(req engine.MoveRequest) (engine.Move, error) {
	pos, err := s.Displayed()
	if err != nil {
		return engine.Move{}, err
	}
	_, mv, err := engine.Apply(pos, req)
	if err != nil {
		return engine.Move{}, err
	}
	n := s.cursor + 1
	kept := s.moves[:n:n]
	s.moves = append(kept, mv)
	s.cursor = len(s.moves) - 1
	s.gen++
	return mv, nil
}

// Replace discards the history and replays texts from base. If any text
// fails to apply the store is left empty at base and the error names the
// offending ply.
func (s *Store) Replace(base engine.Position, texts []string) error {
	if base.IsZero() {
		base = engine.Initial()
	}
	built := make([]engine.Move, 0, len(texts))
	pos := base
	for i, text := range texts {
		next, mv, err := engine.ApplySAN(pos, text)
		if err != nil {
			s.commit(base, nil)
			return fmt.Errorf("ply %d %q: %w", i, text, err)
		}
		built = append(built, mv)
		pos = next
	}
	s.commit(base, built)
	return nil
}

// Reset empties the history and roots it at base.
func (s *Store) Reset(base engine.Position) {
	if base.IsZero() {
		base = engine.Initial()
	}
	s.commit(base, nil)
}

func (s *Store) commit(base engine.Position, moves []engine.Move) {
	s.base = base
	s.moves = moves
	s.cursor = len(moves) - 1
	s.gen++
}

// Select moves the cursor. Indices outside [NoMoves, Len()-1] are rejected
// and leave the cursor where it was.
func (s *Store) Select(index int) error {
	if index < NoMoves || index >= len(s.moves) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrCursorOutOfRange, index, NoMoves, len(s.moves)-1)
	}
	s.cursor = index
	return nil
}

// Displayed replays moves [0..cursor] from the base position.
func (s *Store) Displayed() (engine.Position, error) {
	key := replayKey{gen: s.gen, length: len(s.moves), cursor: s.cursor}
	if s.cacheOK && s.cacheKey == key {
		return s.cached, nil
	}
	pos, err := engine.Replay(s.base, s.moves[:s.cursor+1])
	if err != nil {
		return engine.Position{}, err
	}
	s.cacheKey, s.cached, s.cacheOK = key, pos, true
	return pos, nil
}

// PositionAt replays moves [0..index] without touching the cursor.
func (s *Store) PositionAt(index int) (engine.Position, error) {
	if index < NoMoves || index >= len(s.moves) {
		return engine.Position{}, ErrCursorOutOfRange
	}
	return engine.Replay(s.base, s.moves[:index+1])
}

// Moves returns a copy of the recorded moves.
func (s *Store) Moves() []engine.Move {
	out := make([]engine.Move, len(s.moves))
	copy(out, s.moves)
	return out
}

// SAN returns the move texts in play order.
func (s *Store) SAN() []string {
	out := make([]string, len(s.moves))
	for i, mv := range s.moves {
		out[i] = mv.SAN
	}
	return out
}

func (s *Store) Cursor() int           { return s.cursor }
func (s *Store) Len() int              { return len(s.moves) }
func (s *Store) Base() engine.Position { return s.base }
