// Command boardcheck probes an analysis service and, optionally, watches a
// running board session's view feed or reads its mirrored view from Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/sharpness-board/internal/analysis"
	"github.com/park285/sharpness-board/internal/engine"
	"github.com/park285/sharpness-board/internal/viewbus"
	"github.com/park285/sharpness-board/pkg/boarddto"
)

func main() {
	baseURL := flag.String("analysis", os.Getenv("ANALYSIS_BASE_URL"), "analysis service base URL")
	pgnFile := flag.String("pgn", "", "analyse this PGN file instead of the starting position")
	feedURL := flag.String("feed", "", "ws:// URL of a session view feed to watch")
	watch := flag.Duration("watch", 10*time.Second, "how long to watch the feed")
	redisURL := flag.String("redis", os.Getenv("REDIS_URL"), "redis URL of the view mirror")
	prefix := flag.String("prefix", "", "view mirror key prefix")
	sessionID := flag.String("session", "", "session id whose mirrored view to read")
	flag.Parse()

	if strings.TrimSpace(*baseURL) == "" {
		log.Fatal("ANALYSIS_BASE_URL or -analysis is required")
	}
	client := analysis.NewClient(*baseURL, analysis.WithTimeout(30*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()
	if *pgnFile == "" {
		fen := engine.Initial().FEN()
		score, err := client.AnalyzePosition(ctx, fen)
		if err != nil {
			log.Printf("/analyze error: %v", err)
		} else {
			log.Printf("/analyze ok: sharpness=%.2f evaluation=%.2f", score.Sharpness, score.Evaluation)
		}
	} else {
		raw, err := os.ReadFile(*pgnFile)
		if err != nil {
			log.Fatalf("read pgn: %v", err)
		}
		if tr, err := engine.ParseTranscript(string(raw)); err != nil {
			log.Printf("local parse rejected transcript: %v", err)
		} else {
			log.Printf("local parse: %d plies", len(tr.Moves))
		}
		res, err := client.AnalyzeTranscript(ctx, string(raw))
		if err != nil {
			log.Printf("/analyze_pgn error: %v", err)
		} else {
			for i, s := range res.Plies {
				mv := "?"
				if i < len(res.Moves) {
					mv = res.Moves[i]
				}
				fmt.Printf("%-6s %-8s sharpness=%.2f evaluation=%.2f\n", analysis.PlyLabel(i), mv, s.Sharpness, s.Evaluation)
			}
		}
	}

	if *sessionID != "" {
		readMirror(*redisURL, *prefix, *sessionID)
	}

	if *feedURL == "" {
		log.Println("-feed not set; skipping view feed check")
		return
	}
	watchFeed(*feedURL, *watch)
}

func readMirror(redisURL, prefix, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mirror, err := viewbus.DialRedis(ctx, redisURL, nil, viewbus.WithPrefix(prefix))
	if err != nil {
		log.Printf("mirror connect error: %v", err)
		return
	}
	defer mirror.Close()

	v, err := mirror.Latest(ctx, sessionID)
	switch {
	case err != nil:
		log.Printf("mirror read error: %v", err)
	case v == nil:
		log.Printf("mirror: no view stored for session %s", sessionID)
	default:
		fmt.Printf("mirrored view v%d mode=%s cursor=%d moves=%d fen=%s\n",
			v.Version, v.Mode, v.Cursor, len(v.Moves), v.FEN)
	}
}

func watchFeed(url string, window time.Duration) {
	dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dcancel()
	conn, _, err := websocket.Dial(dctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		log.Printf("feed connect error: %v", err)
		return
	}
	defer conn.CloseNow()

	// Observe for a short window
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	for {
		var v boarddto.View
		if err := wsjson.Read(ctx, conn, &v); err != nil {
			if ctx.Err() == nil {
				log.Printf("feed read error: %v", err)
			}
			break
		}
		fmt.Printf("view v%d mode=%s cursor=%d moves=%d fen=%s position=%s game=%s\n",
			v.Version, v.Mode, v.Cursor, len(v.Moves), v.FEN, v.Position.Status, v.Game.Status)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}
