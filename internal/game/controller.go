// Package game owns the canonical board state of one session: move history,
// edit mode with its FEN buffer, board orientation and the transcript dialog.
package game

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/sharpness-board/internal/engine"
	"github.com/park285/sharpness-board/internal/history"
)

var (
	ErrBoardLocked = errors.New("board is locked while editing")
	ErrNotEditing  = errors.New("edit buffer is read-only outside edit mode")
)

type Mode int

const (
	Viewing Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "viewing"
}

type Dialog int

const (
	DialogClosed Dialog = iota
	DialogOpen
)

func (d Dialog) String() string {
	if d == DialogOpen {
		return "open"
	}
	return "closed"
}

type Orientation int

const (
	WhiteBottom Orientation = iota
	BlackBottom
)

func (o Orientation) String() string {
	if o == BlackBottom {
		return "black"
	}
	return "white"
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Mode        Mode
	Dialog      Dialog
	Orientation Orientation
	Position    engine.Position
	Base        engine.Position
	Buffer      string
	Moves       []engine.Move
	Cursor      int
}

// Controller mutates canonical state. All methods must be called from a
// single goroutine.
type Controller struct {
	logger      *zap.Logger
	hist        *history.Store
	mode        Mode
	dialog      Dialog
	orientation Orientation
	buffer      string
}

func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		logger: logger,
		hist:   history.New(engine.Initial()),
	}
	c.sync()
	return c
}

// sync keeps the edit buffer equal to the displayed FEN while viewing.
func (c *Controller) sync() {
	if c.mode != Viewing {
		return
	}
	pos, err := c.hist.Displayed()
	if err != nil {
		c.logger.Error("displayed_position_replay_failed", zap.Error(err))
		return
	}
	c.buffer = pos.FEN()
}

// PlayMove appends a board move. Promotion defaults to a queen.
func (c *Controller) PlayMove(req engine.MoveRequest) (engine.Move, error) {
	if c.mode == Editing {
		return engine.Move{}, ErrBoardLocked
	}
	mv, err := c.hist.Append(req)
	if err != nil {
		c.logger.Debug("move_rejected",
			zap.String("from", req.From),
			zap.String("to", req.To),
			zap.Error(err),
		)
		return engine.Move{}, err
	}
	c.sync()
	return mv, nil
}

// LoadFEN replaces the game with the position in text. On failure nothing
// changes, including the current mode.
func (c *Controller) LoadFEN(text string) error {
	pos, err := engine.ParseFEN(text)
	if err != nil {
		return err
	}
	c.hist.Reset(pos)
	c.mode = Viewing
	c.buffer = pos.FEN()
	return nil
}

// LoadTranscript parses text and replaces the history with its moves.
// A transcript with no moves is rejected without touching the history.
func (c *Controller) LoadTranscript(text string) error {
	tr, err := engine.ParseTranscript(text)
	if err != nil {
		return err
	}
	if err := history.New(tr.Start).Replace(tr.Start, tr.Moves); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidTranscript, err)
	}
	if err := c.hist.Replace(tr.Start, tr.Moves); err != nil {
		c.sync()
		return err
	}
	c.sync()
	return nil
}

// ReplaceMoves rebuilds the history from SAN texts starting at the standard
// position. A failure leaves the history empty.
func (c *Controller) ReplaceMoves(texts []string) error {
	err := c.hist.Replace(engine.Initial(), texts)
	c.sync()
	return err
}

// JumpTo shows the position after ply index without altering the history.
func (c *Controller) JumpTo(index int) error {
	if err := c.hist.Select(index); err != nil {
		return err
	}
	c.sync()
	return nil
}

// Reset returns to the standard start in viewing mode.
func (c *Controller) Reset() {
	c.hist.Reset(engine.Initial())
	c.mode = Viewing
	c.sync()
}

// ToggleEdit enters editing or applies the buffer. Applying an invalid
// buffer keeps the controller in editing mode.
func (c *Controller) ToggleEdit() error {
	if c.mode == Viewing {
		c.mode = Editing
		return nil
	}
	return c.LoadFEN(c.buffer)
}

func (c *Controller) SetEditBuffer(text string) error {
	if c.mode != Editing {
		return ErrNotEditing
	}
	c.buffer = text
	return nil
}

// Flip toggles orientation. Editing always shows White at the bottom.
func (c *Controller) Flip() error {
	if c.mode == Editing {
		return ErrBoardLocked
	}
	if c.orientation == WhiteBottom {
		c.orientation = BlackBottom
	} else {
		c.orientation = WhiteBottom
	}
	return nil
}

func (c *Controller) OpenDialog()  { c.dialog = DialogOpen }
func (c *Controller) CloseDialog() { c.dialog = DialogClosed }

// SubmitTranscript closes the dialog and loads text.
func (c *Controller) SubmitTranscript(text string) error {
	c.dialog = DialogClosed
	return c.LoadTranscript(text)
}

func (c *Controller) Mode() Mode { return c.mode }

// Displayed returns the position at the cursor.
func (c *Controller) Displayed() (engine.Position, error) {
	return c.hist.Displayed()
}

func (c *Controller) Snapshot() Snapshot {
	pos, err := c.hist.Displayed()
	if err != nil {
		c.logger.Error("displayed_position_replay_failed", zap.Error(err))
		pos = c.hist.Base()
	}
	orientation := c.orientation
	if c.mode == Editing {
		orientation = WhiteBottom
	}
	return Snapshot{
		Mode:        c.mode,
		Dialog:      c.dialog,
		Orientation: orientation,
		Position:    pos,
		Base:        c.hist.Base(),
		Buffer:      c.buffer,
		Moves:       c.hist.Moves(),
		Cursor:      c.hist.Cursor(),
	}
}
