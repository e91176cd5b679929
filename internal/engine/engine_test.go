package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestInitialIsStandardStart(t *testing.T) {
	if got := Initial().FEN(); got != startFEN {
		t.Fatalf("Initial().FEN() = %q, want %q", got, startFEN)
	}
	if Initial().Turn() != "white" || Initial().FullMove() != 1 {
		t.Fatalf("white should move first on move 1")
	}
}

func TestParseFEN(t *testing.T) {
	pos, err := ParseFEN("  " + startFEN + " ")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	if pos.FEN() != startFEN {
		t.Fatalf("ParseFEN normalised to %q", pos.FEN())
	}

	for _, bad := range []string{"", "not a fen", "rnbqkbnr/pppppppp/8/8 w"} {
		if _, err := ParseFEN(bad); !errors.Is(err, ErrInvalidFEN) {
			t.Fatalf("ParseFEN(%q) err = %v, want ErrInvalidFEN", bad, err)
		}
	}
}

func TestApplyLegalAndIllegal(t *testing.T) {
	next, mv, err := Apply(Initial(), MoveRequest{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply e2e4: %v", err)
	}
	want := Move{SAN: "e4", UCI: "e2e4", From: "e2", To: "e4"}
	if diff := cmp.Diff(want, mv); diff != "" {
		t.Fatalf("move mismatch (-want +got):\n%s", diff)
	}
	if next.Turn() != "black" {
		t.Fatalf("turn after e4 = %s", next.Turn())
	}
	if !strings.HasPrefix(next.FEN(), "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b") {
		t.Fatalf("unexpected FEN after e4: %s", next.FEN())
	}

	if _, _, err := Apply(Initial(), MoveRequest{From: "e2", To: "e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("Apply e2e5 err = %v, want ErrIllegalMove", err)
	}
	if _, _, err := Apply(Initial(), MoveRequest{From: "e2"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("Apply without target err = %v, want ErrIllegalMove", err)
	}
}

func TestApplyPromotionDefaultsToQueen(t *testing.T) {
	pos, err := ParseFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	_, mv, err := Apply(pos, MoveRequest{From: "a7", To: "a8"})
	if err != nil {
		t.Fatalf("Apply promotion: %v", err)
	}
	if mv.UCI != "a7a8q" || mv.Promotion != "q" {
		t.Fatalf("promotion = %+v, want queen", mv)
	}

	_, mv, err = Apply(pos, MoveRequest{From: "a7", To: "a8", Promotion: "n"})
	if err != nil {
		t.Fatalf("Apply under-promotion: %v", err)
	}
	if mv.UCI != "a7a8n" {
		t.Fatalf("under-promotion UCI = %s", mv.UCI)
	}
}

func TestApplySANAndReplay(t *testing.T) {
	pos := Initial()
	var played []Move
	for _, san := range []string{"e4", "e5", "Nf3"} {
		next, mv, err := ApplySAN(pos, san)
		if err != nil {
			t.Fatalf("ApplySAN(%s): %v", san, err)
		}
		played = append(played, mv)
		pos = next
	}
	replayed, err := Replay(Initial(), played)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.FEN() != pos.FEN() {
		t.Fatalf("Replay FEN = %s, want %s", replayed.FEN(), pos.FEN())
	}
	if _, _, err := ApplySAN(Initial(), "Ke2"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("ApplySAN Ke2 err = %v", err)
	}
}

func TestParseTranscriptPGN(t *testing.T) {
	pgn := `[Event "Casual"]
[White "A"]
[Black "B"]
[Result "*"]

1. e4 e5 2. Nf3 Nc6 *`
	tr, err := ParseTranscript(pgn)
	if err != nil {
		t.Fatalf("ParseTranscript: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Nf3", "Nc6"}, tr.Moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	if tr.Start.FEN() != startFEN {
		t.Fatalf("start = %s", tr.Start.FEN())
	}
}

func TestParseTranscriptBareMovetext(t *testing.T) {
	tr, err := ParseTranscript("1. d4 d5 2. c4 {Queen's Gambit}")
	if err != nil {
		t.Fatalf("ParseTranscript: %v", err)
	}
	if diff := cmp.Diff([]string{"d4", "d5", "c4"}, tr.Moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTranscriptRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "   ", "hello world", "1. e4 Ke7 Qxh9"} {
		if _, err := ParseTranscript(text); !errors.Is(err, ErrInvalidTranscript) {
			t.Fatalf("ParseTranscript(%q) err = %v, want ErrInvalidTranscript", text, err)
		}
	}
}
