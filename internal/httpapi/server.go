// Package httpapi exposes board sessions over JSON HTTP and a WebSocket
// view feed.
package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/park285/sharpness-board/internal/engine"
	"github.com/park285/sharpness-board/internal/msgcat"
	"github.com/park285/sharpness-board/internal/session"
	"github.com/park285/sharpness-board/internal/viewbus"
	"github.com/park285/sharpness-board/pkg/boarddto"
)

const maxBodyBytes = 1 << 20

type Server struct {
	hub    *session.Hub
	bus    *viewbus.Bus
	msgs   *msgcat.Catalog
	logger *zap.Logger

	originPatterns []string
	pingInterval   time.Duration
	mux            *http.ServeMux
}

type Option func(*Server)

// WithOriginPatterns allows cross-origin WebSocket upgrades from hosts
// matching the patterns.
func WithOriginPatterns(p []string) Option {
	return func(s *Server) { s.originPatterns = p }
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func New(hub *session.Hub, bus *viewbus.Bus, msgs *msgcat.Catalog, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	s := &Server{
		hub:          hub,
		bus:          bus,
		msgs:         msgs,
		logger:       logger,
		pingInterval: 30 * time.Second,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /sessions", s.handleCreate)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	s.mux.HandleFunc("GET /sessions/{id}/ws", s.handleFeed)

	s.mux.HandleFunc("POST /sessions/{id}/move", s.handleMove)
	s.mux.HandleFunc("POST /sessions/{id}/jump", s.handleIndexed((*session.Session).JumpTo))
	s.mux.HandleFunc("POST /sessions/{id}/chart/select", s.handleIndexed((*session.Session).SelectChartPoint))
	s.mux.HandleFunc("POST /sessions/{id}/fen", s.handleFEN)
	s.mux.HandleFunc("PUT /sessions/{id}/edit/buffer", s.handleBuffer)
	s.mux.HandleFunc("POST /sessions/{id}/transcript", s.handleTranscript)

	s.mux.HandleFunc("POST /sessions/{id}/edit", s.handlePlain((*session.Session).ToggleEdit))
	s.mux.HandleFunc("POST /sessions/{id}/flip", s.handlePlain((*session.Session).Flip))
	s.mux.HandleFunc("POST /sessions/{id}/reset", s.handlePlain((*session.Session).Reset))
	s.mux.HandleFunc("POST /sessions/{id}/dialog/open", s.handlePlain((*session.Session).OpenDialog))
	s.mux.HandleFunc("POST /sessions/{id}/dialog/close", s.handlePlain((*session.Session).CloseDialog))
	s.mux.HandleFunc("POST /sessions/{id}/analyze", s.handlePlain((*session.Session).AnalyzePosition))
}

// Handler returns the mux wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.hub.Len()})
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	sess := s.hub.Create()
	view, err := sess.View()
	if err != nil {
		s.writeResult(w, view, err)
		return
	}
	WriteJSON(w, http.StatusCreated, boarddto.Created{ID: sess.ID(), View: view})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeResult(w, boarddto.View{}, err)
		return
	}
	view, err := sess.View()
	if err != nil {
		s.writeResult(w, view, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req boarddto.MoveRequest
	s.withBody(w, r, &req, func(sess *session.Session) (boarddto.View, error) {
		return sess.PlayMove(engine.MoveRequest{From: req.From, To: req.To, Promotion: req.Promotion})
	})
}

func (s *Server) handleIndexed(fn func(*session.Session, int) (boarddto.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req boarddto.IndexRequest
		s.withBody(w, r, &req, func(sess *session.Session) (boarddto.View, error) {
			return fn(sess, req.Index)
		})
	}
}

func (s *Server) handleFEN(w http.ResponseWriter, r *http.Request) {
	var req boarddto.FENRequest
	s.withBody(w, r, &req, func(sess *session.Session) (boarddto.View, error) {
		return sess.LoadFEN(req.FEN)
	})
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	var req boarddto.BufferRequest
	s.withBody(w, r, &req, func(sess *session.Session) (boarddto.View, error) {
		return sess.SetEditBuffer(req.Text)
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req boarddto.TranscriptRequest
	s.withBody(w, r, &req, func(sess *session.Session) (boarddto.View, error) {
		return sess.SubmitTranscript(req.PGN)
	})
}

func (s *Server) handlePlain(fn func(*session.Session) (boarddto.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.lookup(r)
		if err != nil {
			s.writeResult(w, boarddto.View{}, err)
			return
		}
		view, err := fn(sess)
		s.writeResult(w, view, err)
	}
}

func (s *Server) withBody(w http.ResponseWriter, r *http.Request, dst any, fn func(*session.Session) (boarddto.View, error)) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeResult(w, boarddto.View{}, err)
		return
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		view, _ := sess.View()
		s.writeResult(w, view, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	view, err := fn(sess)
	s.writeResult(w, view, err)
}

func (s *Server) lookup(r *http.Request) (*session.Session, error) {
	id := r.PathValue("id")
	sess, ok := s.hub.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotFound, id)
	}
	return sess, nil
}

func (s *Server) writeResult(w http.ResponseWriter, view boarddto.View, err error) {
	var body boarddto.Result
	if view.SessionID != "" {
		body.View = &view
	}
	if err == nil {
		body.OK = true
		WriteJSON(w, http.StatusOK, body)
		return
	}
	status, code := classify(err)
	body.Error = &boarddto.Error{
		Code:    code,
		Message: s.msgs.Text("errors."+code, map[string]any{"Reason": err.Error()}),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed", zap.String("code", code), zap.Error(err))
	}
	WriteJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade reach the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
