package httpapi

import (
	"errors"
	"net/http"

	"github.com/park285/sharpness-board/internal/analysis"
	"github.com/park285/sharpness-board/internal/engine"
	"github.com/park285/sharpness-board/internal/game"
	"github.com/park285/sharpness-board/internal/history"
	"github.com/park285/sharpness-board/internal/session"
)

var (
	errNotFound   = errors.New("session not found")
	errBadRequest = errors.New("malformed request")
)

// classify maps an error to its HTTP status and kind code.
func classify(err error) (int, string) {
	var reqErr *analysis.RequestError
	switch {
	case errors.Is(err, engine.ErrIllegalMove):
		return http.StatusUnprocessableEntity, "illegal_move"
	case errors.Is(err, engine.ErrInvalidFEN):
		return http.StatusUnprocessableEntity, "invalid_fen"
	case errors.Is(err, engine.ErrInvalidTranscript):
		return http.StatusUnprocessableEntity, "invalid_transcript"
	case errors.Is(err, game.ErrBoardLocked):
		return http.StatusConflict, "board_locked"
	case errors.Is(err, game.ErrNotEditing):
		return http.StatusConflict, "not_editing"
	case errors.Is(err, history.ErrCursorOutOfRange):
		return http.StatusBadRequest, "out_of_range"
	case errors.Is(err, errNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.As(err, &reqErr):
		return http.StatusBadGateway, "analysis_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
