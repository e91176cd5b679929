package history

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/sharpness-board/internal/engine"
)

func playAll(t *testing.T, s *Store, reqs ...engine.MoveRequest) {
	t.Helper()
	for _, req := range reqs {
		if _, err := s.Append(req); err != nil {
			t.Fatalf("Append %s%s: %v", req.From, req.To, err)
		}
	}
}

func fiveMoves() []engine.MoveRequest {
	return []engine.MoveRequest{
		{From: "e2", To: "e4"},
		{From: "e7", To: "e5"},
		{From: "g1", To: "f3"},
		{From: "b8", To: "c6"},
		{From: "f1", To: "b5"},
	}
}

func TestAppendSetsCursorToLast(t *testing.T) {
	s := New(engine.Position{})
	mv, err := s.Append(engine.MoveRequest{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if mv.SAN != "e4" || s.Cursor() != 0 || s.Len() != 1 {
		t.Fatalf("after e4: san=%s cursor=%d len=%d", mv.SAN, s.Cursor(), s.Len())
	}
}

func TestAppendIllegalLeavesStoreUnchanged(t *testing.T) {
	s := New(engine.Position{})
	playAll(t, s, engine.MoveRequest{From: "e2", To: "e4"})
	if _, err := s.Append(engine.MoveRequest{From: "e4", To: "e6"}); !errors.Is(err, engine.ErrIllegalMove) {
		t.Fatalf("Append illegal err = %v", err)
	}
	if s.Len() != 1 || s.Cursor() != 0 {
		t.Fatalf("store changed: len=%d cursor=%d", s.Len(), s.Cursor())
	}
}

func TestSelectIsNonDestructive(t *testing.T) {
	s := New(engine.Position{})
	playAll(t, s, fiveMoves()...)
	if err := s.Select(2); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s.Len() != 5 || s.Cursor() != 2 {
		t.Fatalf("len=%d cursor=%d", s.Len(), s.Cursor())
	}
	pos, err := s.Displayed()
	if err != nil {
		t.Fatalf("Displayed: %v", err)
	}
	want, err := engine.Replay(engine.Initial(), s.Moves()[:3])
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if pos.FEN() != want.FEN() {
		t.Fatalf("displayed %s, want %s", pos.FEN(), want.FEN())
	}
}

func TestSelectRejectsOutOfRange(t *testing.T) {
	s := New(engine.Position{})
	playAll(t, s, fiveMoves()[:2]...)
	for _, idx := range []int{-2, 2, 100} {
		if err := s.Select(idx); !errors.Is(err, ErrCursorOutOfRange) {
			t.Fatalf("Select(%d) err = %v", idx, err)
		}
		if s.Cursor() != 1 {
			t.Fatalf("cursor moved to %d", s.Cursor())
		}
	}
	if err := s.Select(NoMoves); err != nil {
		t.Fatalf("Select(NoMoves): %v", err)
	}
	pos, _ := s.Displayed()
	if pos.FEN() != engine.Initial().FEN() {
		t.Fatalf("cursor -1 should show base, got %s", pos.FEN())
	}
}

func TestReplayMatchesEveryCursor(t *testing.T) {
	s := New(engine.Position{})
	playAll(t, s, fiveMoves()...)
	moves := s.Moves()
	for k := range moves {
		if err := s.Select(k); err != nil {
			t.Fatalf("Select(%d): %v", k, err)
		}
		got, err := s.Displayed()
		if err != nil {
			t.Fatalf("Displayed: %v", err)
		}
		want, _ := engine.Replay(engine.Initial(), moves[:k+1])
		if got.FEN() != want.FEN() {
			t.Fatalf("k=%d displayed %s want %s", k, got.FEN(), want.FEN())
		}
		at, _ := s.PositionAt(k)
		if at.FEN() != want.FEN() {
			t.Fatalf("k=%d PositionAt %s want %s", k, at.FEN(), want.FEN())
		}
	}
}

func TestAppendAfterScrubTruncatesTail(t *testing.T) {
	s := New(engine.Position{})
	playAll(t, s, fiveMoves()...)
	if err := s.Select(1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := s.Append(engine.MoveRequest{From: "d2", To: "d4"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "d4"}, s.SAN()); diff != "" {
		t.Fatalf("moves (-want +got):\n%s", diff)
	}
	if s.Cursor() != 2 {
		t.Fatalf("cursor = %d", s.Cursor())
	}
}

func TestReplace(t *testing.T) {
	s := New(engine.Position{})
	if err := s.Replace(engine.Initial(), []string{"e4", "e5", "Nf3"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Nf3"}, s.SAN()); diff != "" {
		t.Fatalf("moves (-want +got):\n%s", diff)
	}
	if s.Cursor() != 2 {
		t.Fatalf("cursor = %d", s.Cursor())
	}

	err := s.Replace(engine.Initial(), []string{"d4", "Qxh7"})
	if !errors.Is(err, engine.ErrIllegalMove) || !strings.Contains(err.Error(), "ply 1") {
		t.Fatalf("Replace bad err = %v", err)
	}
	if s.Len() != 0 || s.Cursor() != NoMoves {
		t.Fatalf("failed replace should leave empty history: len=%d cursor=%d", s.Len(), s.Cursor())
	}
}

func TestResetTwiceIsIdempotent(t *testing.T) {
	s := New(engine.Position{})
	playAll(t, s, fiveMoves()...)
	s.Reset(engine.Position{})
	first, _ := s.Displayed()
	s.Reset(engine.Position{})
	second, _ := s.Displayed()
	if first.FEN() != second.FEN() || first.FEN() != engine.Initial().FEN() {
		t.Fatalf("reset positions differ: %s vs %s", first.FEN(), second.FEN())
	}
	if s.Len() != 0 || s.Cursor() != NoMoves {
		t.Fatalf("len=%d cursor=%d", s.Len(), s.Cursor())
	}
}

func TestCustomBase(t *testing.T) {
	base, err := engine.ParseFEN("4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	s := New(base)
	playAll(t, s, engine.MoveRequest{From: "e2", To: "e4"})
	if err := s.Select(NoMoves); err != nil {
		t.Fatalf("Select: %v", err)
	}
	pos, _ := s.Displayed()
	if pos.FEN() != base.FEN() {
		t.Fatalf("base not preserved: %s", pos.FEN())
	}
}
