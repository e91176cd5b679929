package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var (
	ErrMalformedResponse = errors.New("malformed analysis response")
	ErrEmptyAnalysis     = errors.New("analysis returned no plies")
)

// Score is one position's result from the analysis service.
type Score struct {
	Sharpness  float64 `json:"sharpness"`
	Evaluation float64 `json:"evaluation"`
}

// GameAnalysis is a whole-game result: one score per ply and the move
// texts the service parsed.
type GameAnalysis struct {
	Plies []Score
	Moves []string
}

type positionRequest struct {
	FEN string `json:"fen"`
}

type transcriptRequest struct {
	PGN string `json:"pgn"`
}

type scoreResponse struct {
	Sharpness  *float64 `json:"sharpness"`
	Evaluation *float64 `json:"evaluation"`
}

type transcriptResponse struct {
	Analysis []scoreResponse `json:"analysis"`
	Moves    []string        `json:"moves"`
}

func (r scoreResponse) score() (Score, error) {
	if r.Sharpness == nil || r.Evaluation == nil {
		return Score{}, ErrMalformedResponse
	}
	return Score{Sharpness: *r.Sharpness, Evaluation: *r.Evaluation}, nil
}

// RequestError reports a failed call to the analysis service.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("analysis %s: status=%d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("analysis %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Service is what the coordinator needs from the remote analyser.
type Service interface {
	AnalyzePosition(ctx context.Context, fen string) (Score, error)
	AnalyzeTranscript(ctx context.Context, pgn string) (GameAnalysis, error)
}

// Client calls the analysis service. It never retries.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	timeout time.Duration
}

type Option func(*Client)

// WithTimeout bounds each call. Zero leaves timing to the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{MaxConnsPerHost: 64},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzePosition posts {fen} to /analyze.
func (c *Client) AnalyzePosition(ctx context.Context, fen string) (Score, error) {
	var resp scoreResponse
	if err := c.doJSON(ctx, "/analyze", positionRequest{FEN: fen}, &resp); err != nil {
		return Score{}, err
	}
	s, err := resp.score()
	if err != nil {
		return Score{}, &RequestError{Op: "/analyze", Err: err}
	}
	return s, nil
}

// AnalyzeTranscript posts {pgn} to /analyze_pgn. An empty analysis list is
// a failure.
func (c *Client) AnalyzeTranscript(ctx context.Context, pgn string) (GameAnalysis, error) {
	const op = "/analyze_pgn"
	var resp transcriptResponse
	if err := c.doJSON(ctx, op, transcriptRequest{PGN: pgn}, &resp); err != nil {
		return GameAnalysis{}, err
	}
	if len(resp.Analysis) == 0 {
		return GameAnalysis{}, &RequestError{Op: op, Err: ErrEmptyAnalysis}
	}
	out := GameAnalysis{Plies: make([]Score, len(resp.Analysis)), Moves: resp.Moves}
	for i, r := range resp.Analysis {
		s, err := r.score()
		if err != nil {
			return GameAnalysis{}, &RequestError{Op: op, Err: fmt.Errorf("ply %d: %w", i, err)}
		}
		out.Plies[i] = s
	}
	return out, nil
}

type exchange struct {
	status int
	body   []byte
	err    error
}

func (c *Client) doJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &RequestError{Op: path, Err: fmt.Errorf("marshal request: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return &RequestError{Op: path, Err: err}
	}

	// fasthttp does not watch ctx, so the call runs on its own goroutine,
	// which owns req and resp until it returns.
	done := make(chan exchange, 1)
	go func() {
		done <- c.send(ctx, path, payload)
	}()

	var ex exchange
	select {
	case ex = <-done:
	case <-ctx.Done():
		return &RequestError{Op: path, Err: ctx.Err()}
	}
	if ex.err != nil {
		return &RequestError{Op: path, Err: fmt.Errorf("request failed: %w", ex.err)}
	}

	if ex.status < 200 || ex.status >= 300 {
		return &RequestError{Op: path, Status: ex.status, Err: fmt.Errorf("body=%s", truncate(string(ex.body), 512))}
	}

	if err := json.Unmarshal(ex.body, out); err != nil {
		return &RequestError{Op: path, Status: ex.status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

func (c *Client) send(ctx context.Context, path string, payload []byte) exchange {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	var err error
	if deadline, ok := c.computeDeadline(ctx); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.Do(req, resp)
	}
	if err != nil {
		return exchange{err: err}
	}
	return exchange{status: resp.StatusCode(), body: append([]byte(nil), resp.Body()...)}
}

// computeDeadline picks the earlier of the context deadline and the client
// timeout. It reports false when neither is set.
func (c *Client) computeDeadline(ctx context.Context) (time.Time, bool) {
	dl, hasCtx := ctx.Deadline()
	if c.timeout <= 0 {
		return dl, hasCtx
	}
	clientDL := time.Now().Add(c.timeout)
	if hasCtx && dl.Before(clientDL) {
		return dl, true
	}
	return clientDL, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
