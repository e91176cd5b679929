package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/sharpness-board/pkg/boarddto"
)

const (
	feedBuffer       = 16
	feedWriteTimeout = 5 * time.Second
)

// handleFeed streams the current view and then every newer one.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeResult(w, boarddto.View{}, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.String("session_id", sess.ID()), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.bus.Subscribe(sess.ID(), feedBuffer)
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	initial, err := sess.View()
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "session closed")
		return
	}
	if err := writeView(ctx, conn, initial); err != nil {
		return
	}
	sent := initial.Version
	s.logger.Debug("ws_feed_opened", zap.String("session_id", sess.ID()))

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if view.Version <= sent {
				continue
			}
			if err := writeView(ctx, conn, view); err != nil {
				s.logger.Debug("ws_write_failed", zap.String("session_id", sess.ID()), zap.Error(err))
				return
			}
			sent = view.Version
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeView(ctx context.Context, conn *websocket.Conn, view boarddto.View) error {
	wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, view)
}
