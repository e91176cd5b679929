package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/sharpness-board/internal/analysis"
	"github.com/park285/sharpness-board/internal/session"
	"github.com/park285/sharpness-board/internal/viewbus"
	"github.com/park285/sharpness-board/pkg/boarddto"
)

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzePosition(context.Context, string) (analysis.Score, error) {
	return analysis.Score{Sharpness: 0, Evaluation: 0.3}, nil
}

func (stubAnalyzer) AnalyzeTranscript(context.Context, string) (analysis.GameAnalysis, error) {
	return analysis.GameAnalysis{Plies: []analysis.Score{{Sharpness: 1}}, Moves: []string{"e4"}}, nil
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	bus := viewbus.New(nil)
	hub := session.NewHub(session.HubConfig{Analyzer: stubAnalyzer{}, Publisher: bus})
	srv := httptest.NewServer(New(hub, bus, nil, nil, opts...).Handler())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		_ = bus.Close()
	})
	return srv
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created boarddto.Created
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.View.Cursor != -1 {
		t.Fatalf("created = %+v", created)
	}
	return created.ID
}

func call(t *testing.T, method, url string, body any) (int, boarddto.Result) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out boarddto.Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

func TestMoveAndIllegalMove(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id

	status, res := call(t, http.MethodPost, base+"/move", boarddto.MoveRequest{From: "e2", To: "e4"})
	if status != http.StatusOK || !res.OK || res.View == nil || len(res.View.Moves) != 1 || res.View.Moves[0].SAN != "e4" {
		t.Fatalf("move: status=%d res=%+v", status, res)
	}

	status, res = call(t, http.MethodPost, base+"/move", boarddto.MoveRequest{From: "e4", To: "e6"})
	if status != http.StatusUnprocessableEntity || res.OK || res.Error == nil || res.Error.Code != "illegal_move" {
		t.Fatalf("illegal: status=%d res=%+v", status, res)
	}
	if res.View == nil || len(res.View.Moves) != 1 {
		t.Fatalf("illegal move should return unchanged view: %+v", res.View)
	}
}

func TestEditFlowCodes(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/sessions/" + createSession(t, srv)

	status, res := call(t, http.MethodPut, base+"/edit/buffer", boarddto.BufferRequest{Text: "x"})
	if status != http.StatusConflict || res.Error.Code != "not_editing" {
		t.Fatalf("buffer outside edit: %d %+v", status, res.Error)
	}
	if _, res = call(t, http.MethodPost, base+"/edit", nil); !res.OK || res.View.Mode != "editing" {
		t.Fatalf("enter edit: %+v", res)
	}
	status, res = call(t, http.MethodPost, base+"/move", boarddto.MoveRequest{From: "e2", To: "e4"})
	if status != http.StatusConflict || res.Error.Code != "board_locked" {
		t.Fatalf("move while editing: %d %+v", status, res.Error)
	}
	call(t, http.MethodPut, base+"/edit/buffer", boarddto.BufferRequest{Text: "nope"})
	status, res = call(t, http.MethodPost, base+"/edit", nil)
	if status != http.StatusUnprocessableEntity || res.Error.Code != "invalid_fen" || res.View.Mode != "editing" {
		t.Fatalf("apply bad fen: %d %+v", status, res)
	}
	if !strings.HasPrefix(res.Error.Message, "Invalid FEN") {
		t.Fatalf("message = %q", res.Error.Message)
	}
}

func TestTranscriptAndChart(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/sessions/" + createSession(t, srv)

	status, res := call(t, http.MethodPost, base+"/transcript", boarddto.TranscriptRequest{PGN: "garbage text"})
	if status != http.StatusUnprocessableEntity || res.Error.Code != "invalid_transcript" {
		t.Fatalf("garbage: %d %+v", status, res.Error)
	}

	if _, res = call(t, http.MethodPost, base+"/transcript", boarddto.TranscriptRequest{PGN: "1. e4 e5 2. Nf3"}); !res.OK {
		t.Fatalf("transcript: %+v", res.Error)
	}
	deadline := time.Now().Add(2 * time.Second)
	for res.View.Game.Status != "ready" {
		if time.Now().After(deadline) {
			t.Fatalf("game analysis never ready: %+v", res.View.Game)
		}
		time.Sleep(5 * time.Millisecond)
		resp, err := http.Get(base)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var v boarddto.View
		_ = json.NewDecoder(resp.Body).Decode(&v)
		resp.Body.Close()
		res.View = &v
	}
	if diff := cmp.Diff([]boarddto.Move{{Ply: 0, SAN: "e4", UCI: "e2e4", From: "e2", To: "e4"}}, res.View.Moves); diff != "" {
		t.Fatalf("moves replaced by analysis (-want +got):\n%s", diff)
	}
	status, res = call(t, http.MethodPost, base+"/chart/select", boarddto.IndexRequest{Index: 3})
	if status != http.StatusBadRequest || res.Error.Code != "out_of_range" {
		t.Fatalf("chart select: %d %+v", status, res.Error)
	}
}

func TestNotFoundAndBadJSON(t *testing.T) {
	srv := newTestServer(t)
	status, res := call(t, http.MethodPost, srv.URL+"/sessions/missing/reset", nil)
	if status != http.StatusNotFound || res.Error.Code != "not_found" {
		t.Fatalf("missing: %d %+v", status, res.Error)
	}

	base := srv.URL + "/sessions/" + createSession(t, srv)
	resp, err := http.Post(base+"/fen", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["ok"] != true || body["sessions"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
}

func TestFeedStreamsViews(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var initial boarddto.View
	if err := wsjson.Read(ctx, conn, &initial); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if initial.SessionID != id || len(initial.Moves) != 0 {
		t.Fatalf("initial = %+v", initial)
	}

	call(t, http.MethodPost, srv.URL+"/sessions/"+id+"/move", boarddto.MoveRequest{From: "d2", To: "d4"})
	var next boarddto.View
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Version <= initial.Version || len(next.Moves) != 1 || next.Moves[0].SAN != "d4" {
		t.Fatalf("update = %+v", next)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestFeedSurvivesPings(t *testing.T) {
	srv := newTestServer(t, WithPingInterval(20*time.Millisecond))
	id := createSession(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	views := make(chan boarddto.View, 4)
	go func() {
		defer close(views)
		for {
			var v boarddto.View
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
			views <- v
		}
	}()
	if _, ok := <-views; !ok {
		t.Fatalf("feed closed before initial view")
	}

	// several ping intervals pass before the next change
	time.Sleep(150 * time.Millisecond)
	call(t, http.MethodPost, srv.URL+"/sessions/"+id+"/move", boarddto.MoveRequest{From: "e2", To: "e4"})
	select {
	case v, ok := <-views:
		if !ok {
			t.Fatalf("feed closed while idle")
		}
		if len(v.Moves) != 1 || v.Moves[0].SAN != "e4" {
			t.Fatalf("update = %+v", v)
		}
	case <-ctx.Done():
		t.Fatalf("no update after pings")
	}
}
