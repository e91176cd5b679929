package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove        = errors.New("illegal move")
	ErrInvalidFEN         = errors.New("invalid FEN string")
	ErrInvalidTranscript  = errors.New("invalid game transcript")
	ErrEmptyPosition      = errors.New("position is not initialised")
	defaultPromotionPiece = "q"
)

var (
	moveNumberPrefix = regexp.MustCompile(`^\d+\.+`)
	commentBlock     = regexp.MustCompile(`\{[^}]*\}`)
	resultTokens     = map[string]struct{}{"1-0": {}, "0-1": {}, "1/2-1/2": {}, "*": {}}
)

// Position is an immutable chess position identified by its FEN.
// Every operation that changes the game yields a new Position.
type Position struct {
	fen string
}

// Initial returns the standard starting position.
func Initial() Position {
	return Position{fen: nchess.NewGame().FEN()}
}

// FEN returns the FEN encoding of the position.
func (p Position) FEN() string { return p.fen }

// IsZero reports whether p was never produced by the engine.
func (p Position) IsZero() bool { return p.fen == "" }

// Turn returns "white" or "black" for the side to move.
func (p Position) Turn() string {
	fields := strings.Fields(p.fen)
	if len(fields) > 1 && fields[1] == "b" {
		return "black"
	}
	return "white"
}

// FullMove returns the fullmove counter, 1 when absent.
func (p Position) FullMove() int {
	fields := strings.Fields(p.fen)
	if len(fields) < 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (p Position) game() (*nchess.Game, error) {
	if p.IsZero() {
		return nil, ErrEmptyPosition
	}
	opt, err := nchess.FEN(p.fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return nchess.NewGame(opt), nil
}

// MoveRequest is a board interaction: a piece dragged from one square to another.
type MoveRequest struct {
	From      string
	To        string
	Promotion string
}

// Move is a played half-move. UCI is enough to replay it through the engine.
type Move struct {
	SAN       string
	UCI       string
	From      string
	To        string
	Promotion string
}

// ParseFEN validates text and returns the position it describes.
func ParseFEN(text string) (Position, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Position{}, ErrInvalidFEN
	}
	opt, err := nchess.FEN(text)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return Position{fen: nchess.NewGame(opt).FEN()}, nil
}

// Apply plays req against pos. Promotion defaults to a queen and is only
// used when the plain from/to move is not legal on its own.
func Apply(pos Position, req MoveRequest) (Position, Move, error) {
	from := strings.ToLower(strings.TrimSpace(req.From))
	to := strings.ToLower(strings.TrimSpace(req.To))
	if len(from) != 2 || len(to) != 2 {
		return Position{}, Move{}, ErrIllegalMove
	}
	promo := strings.ToLower(strings.TrimSpace(req.Promotion))
	if promo == "" {
		promo = defaultPromotionPiece
	}

	next, mv, err := applyUCI(pos, from+to)
	if err == nil {
		return next, mv, nil
	}
	if errors.Is(err, ErrIllegalMove) {
		return applyUCI(pos, from+to+promo)
	}
	return Position{}, Move{}, err
}

// ApplySAN plays a move given in standard algebraic notation.
func ApplySAN(pos Position, san string) (Position, Move, error) {
	return applyNotation(pos, strings.TrimSpace(san), nchess.AlgebraicNotation{})
}

// Replay applies moves in order from start and returns the final position.
func Replay(start Position, moves []Move) (Position, error) {
	pos := start
	for i, mv := range moves {
		next, _, err := applyUCI(pos, mv.UCI)
		if err != nil {
			return Position{}, fmt.Errorf("replay ply %d (%s): %w", i, mv.SAN, err)
		}
		pos = next
	}
	return pos, nil
}

func applyUCI(pos Position, uci string) (Position, Move, error) {
	return applyNotation(pos, uci, nchess.UCINotation{})
}

func applyNotation(pos Position, text string, notation nchess.Notation) (Position, Move, error) {
	game, err := pos.game()
	if err != nil {
		return Position{}, Move{}, err
	}
	before := game.Position()
	mv, err := notation.Decode(before, text)
	if err != nil || mv == nil {
		return Position{}, Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	san := nchess.AlgebraicNotation{}.Encode(before, mv)
	uci := strings.ToLower(nchess.UCINotation{}.Encode(before, mv))
	if err := game.Move(mv, nil); err != nil {
		return Position{}, Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	played := Move{
		SAN:  san,
		UCI:  uci,
		From: mv.S1().String(),
		To:   mv.S2().String(),
	}
	if len(uci) == 5 {
		played.Promotion = uci[4:]
	}
	return Position{fen: game.FEN()}, played, nil
}

// Transcript is a parsed game: its starting position and SAN move texts.
type Transcript struct {
	Start Position
	Moves []string
}

// ParseTranscript turns pasted game notation into move texts. A transcript
// that yields no moves is rejected.
func ParseTranscript(text string) (tr Transcript, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Transcript{}, ErrInvalidTranscript
	}
	defer func() {
		if r := recover(); r != nil {
			tr, err = Transcript{}, fmt.Errorf("%w: %v", ErrInvalidTranscript, r)
		}
	}()

	if tr, ok := parsePGN(text); ok {
		return tr, nil
	}
	return parseMovetext(text)
}

func parsePGN(text string) (Transcript, bool) {
	opt, err := nchess.PGN(strings.NewReader(withResult(text)))
	if err != nil {
		return Transcript{}, false
	}
	game := nchess.NewGame(opt)
	moves := game.Moves()
	positions := game.Positions()
	if len(moves) == 0 || len(positions) < len(moves) {
		return Transcript{}, false
	}
	out := make([]string, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		out[i] = notation.Encode(positions[i], mv)
	}
	return Transcript{Start: Position{fen: positions[0].String()}, Moves: out}, true
}

// parseMovetext replays bare movetext such as "1. e4 e5 2. Nf3".
func parseMovetext(text string) (Transcript, error) {
	start := Initial()
	pos := start
	var out []string
	for _, tok := range strings.Fields(commentBlock.ReplaceAllString(text, " ")) {
		tok = moveNumberPrefix.ReplaceAllString(tok, "")
		if tok == "" {
			continue
		}
		if _, ok := resultTokens[tok]; ok {
			continue
		}
		next, mv, err := ApplySAN(pos, tok)
		if err != nil {
			return Transcript{}, fmt.Errorf("%w: %q", ErrInvalidTranscript, tok)
		}
		out = append(out, mv.SAN)
		pos = next
	}
	if len(out) == 0 {
		return Transcript{}, ErrInvalidTranscript
	}
	return Transcript{Start: start, Moves: out}, nil
}

func withResult(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return text
	}
	if _, ok := resultTokens[fields[len(fields)-1]]; ok {
		return text
	}
	return text + " *"
}
