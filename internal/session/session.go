// Package session runs one board per browser session. Every mutation,
// including analysis completions, is applied on the session's own goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/sharpness-board/internal/analysis"
	"github.com/park285/sharpness-board/internal/engine"
	"github.com/park285/sharpness-board/internal/game"
	"github.com/park285/sharpness-board/internal/history"
	"github.com/park285/sharpness-board/internal/msgcat"
	"github.com/park285/sharpness-board/pkg/boarddto"
)

var ErrClosed = errors.New("session closed")

// Publisher receives the view after every state change.
type Publisher interface {
	Publish(view boarddto.View)
}

type Config struct {
	ID        string
	Analyzer  analysis.Service
	Policy    analysis.StalePolicy
	Messages  *msgcat.Catalog
	Publisher Publisher
	Logger    *zap.Logger
}

type result struct {
	view boarddto.View
	err  error
}

// op mutates state and reports whether a new view should be published.
type op struct {
	fn    func() (bool, error)
	reply chan result
}

type Session struct {
	id       string
	logger   *zap.Logger
	analyzer analysis.Service
	msgs     *msgcat.Catalog
	pub      Publisher

	ctrl    *game.Controller
	coord   *analysis.Coordinator
	version uint64

	ops      chan op
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
	lastSeen   atomic.Int64
}

func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	msgs := cfg.Messages
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	logger = logger.With(zap.String("session_id", cfg.ID))
	s := &Session{
		id:       cfg.ID,
		logger:   logger,
		analyzer: cfg.Analyzer,
		msgs:     msgs,
		pub:      cfg.Publisher,
		ctrl:     game.NewController(logger),
		coord:    analysis.NewCoordinator(cfg.Policy),
		ops:      make(chan op),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.touch()
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

// LastSeen is the time of the last caller-initiated operation.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case o := <-s.ops:
			changed, err := o.fn()
			if changed {
				s.version++
			}
			view := s.view()
			if changed && s.pub != nil {
				s.pub.Publish(view)
			}
			if o.reply != nil {
				o.reply <- result{view: view, err: err}
			}
		case <-s.quit:
			return
		}
	}
}

func (s *Session) view() boarddto.View {
	return buildView(s.id, s.version, s.ctrl.Snapshot(), s.coord, s.msgs)
}

// exec runs fn on the session goroutine and returns the resulting view.
func (s *Session) exec(fn func() (bool, error)) (boarddto.View, error) {
	s.touch()
	reply := make(chan result, 1)
	select {
	case s.ops <- op{fn: fn, reply: reply}:
	case <-s.done:
		return boarddto.View{}, ErrClosed
	}
	r := <-reply
	return r.view, r.err
}

// post queues a completion without waiting. It is dropped once the session stops.
func (s *Session) post(fn func() (bool, error)) {
	select {
	case s.ops <- op{fn: fn}:
	case <-s.done:
	}
}

func (s *Session) View() (boarddto.View, error) {
	return s.exec(func() (bool, error) { return false, nil })
}

func (s *Session) PlayMove(req engine.MoveRequest) (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		if _, err := s.ctrl.PlayMove(req); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *Session) JumpTo(index int) (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		return okChanged(s.ctrl.JumpTo(index))
	})
}

func (s *Session) LoadFEN(text string) (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		return okChanged(s.ctrl.LoadFEN(text))
	})
}

func (s *Session) ToggleEdit() (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		return okChanged(s.ctrl.ToggleEdit())
	})
}

func (s *Session) SetEditBuffer(text string) (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		return okChanged(s.ctrl.SetEditBuffer(text))
	})
}

func (s *Session) Flip() (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		return okChanged(s.ctrl.Flip())
	})
}

// Reset starts a new game and clears both analysis panels.
func (s *Session) Reset() (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		s.ctrl.Reset()
		s.coord.Clear()
		return true, nil
	})
}

func (s *Session) OpenDialog() (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		s.ctrl.OpenDialog()
		return true, nil
	})
}

func (s *Session) CloseDialog() (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		s.ctrl.CloseDialog()
		return true, nil
	})
}

// SubmitTranscript closes the dialog, loads text locally and, when that
// succeeds, sends it for whole-game analysis.
func (s *Session) SubmitTranscript(text string) (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		if err := s.ctrl.SubmitTranscript(text); err != nil {
			return true, err
		}
		s.dispatchGame(text)
		return true, nil
	})
}

// AnalyzePosition sends the displayed position for analysis.
func (s *Session) AnalyzePosition() (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		pos, err := s.ctrl.Displayed()
		if err != nil {
			return false, err
		}
		s.dispatchPosition(pos.FEN())
		return true, nil
	})
}

// SelectChartPoint jumps to the ply behind a chart point.
func (s *Session) SelectChartPoint(index int) (boarddto.View, error) {
	return s.exec(func() (bool, error) {
		if s.coord.Game.Status != analysis.Ready || index < 0 || index >= len(s.coord.Game.Value.Chart) {
			return false, fmt.Errorf("%w: chart point %d", history.ErrCursorOutOfRange, index)
		}
		return okChanged(s.ctrl.JumpTo(index))
	})
}

func (s *Session) dispatchPosition(fen string) {
	t := s.coord.BeginPosition()
	s.logDispatch(t)
	ctx := s.rootCtx
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		score, err := analysis.Score{}, errNoAnalyzer
		if s.analyzer != nil {
			score, err = s.analyzer.AnalyzePosition(ctx, fen)
		}
		s.post(func() (bool, error) {
			return s.completePosition(t, score, err), nil
		})
	}()
}

func (s *Session) dispatchGame(pgn string) {
	t := s.coord.BeginGame()
	s.logDispatch(t)
	ctx := s.rootCtx
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res, err := analysis.GameAnalysis{}, errNoAnalyzer
		if s.analyzer != nil {
			res, err = s.analyzer.AnalyzeTranscript(ctx, pgn)
		}
		s.post(func() (bool, error) {
			return s.completeGame(t, res, err), nil
		})
	}()
}

var errNoAnalyzer = errors.New("analysis service not configured")

func (s *Session) logDispatch(t analysis.Ticket) {
	s.logger.Info("analysis_dispatched",
		zap.String("kind", t.Kind.String()),
		zap.String("request_id", t.ID.String()),
		zap.Uint64("seq", t.Seq),
	)
}

func (s *Session) completePosition(t analysis.Ticket, score analysis.Score, err error) bool {
	if !s.coord.CompletePosition(t, score, err) {
		s.logger.Info("analysis_stale_dropped", zap.String("kind", t.Kind.String()), zap.String("request_id", t.ID.String()))
		return false
	}
	if err != nil {
		s.logger.Warn("analysis_failed", zap.String("kind", t.Kind.String()), zap.String("request_id", t.ID.String()), zap.Error(err))
	}
	return true
}

// completeGame applies a whole-game result and replaces the history with the
// moves the service parsed.
func (s *Session) completeGame(t analysis.Ticket, res analysis.GameAnalysis, err error) bool {
	if !s.coord.CompleteGame(t, res, err) {
		s.logger.Info("analysis_stale_dropped", zap.String("kind", t.Kind.String()), zap.String("request_id", t.ID.String()))
		return false
	}
	if err == nil && len(res.Plies) == 0 {
		err = analysis.ErrEmptyAnalysis
	}
	if err != nil {
		s.logger.Warn("analysis_failed", zap.String("kind", t.Kind.String()), zap.String("request_id", t.ID.String()), zap.Error(err))
		return true
	}
	if rerr := s.ctrl.ReplaceMoves(res.Moves); rerr != nil {
		s.coord.FailGame(fmt.Errorf("replay analysed moves: %w", rerr))
		s.logger.Warn("analysis_moves_rejected", zap.String("request_id", t.ID.String()), zap.Error(rerr))
		return true
	}
	if len(res.Moves) != len(res.Plies) {
		s.logger.Warn("analysis_ply_count_mismatch",
			zap.String("request_id", t.ID.String()),
			zap.Int("moves", len(res.Moves)),
			zap.Int("plies", len(res.Plies)),
		)
	}
	return true
}

// Close stops the loop and waits for in-flight analysis calls to return.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		s.rootCancel()
		close(s.quit)
	})
	<-s.done
	s.inflight.Wait()
}

func okChanged(err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return true, nil
}
