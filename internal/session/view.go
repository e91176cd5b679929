package session

import (
	"github.com/park285/sharpness-board/internal/analysis"
	"github.com/park285/sharpness-board/internal/engine"
	"github.com/park285/sharpness-board/internal/game"
	"github.com/park285/sharpness-board/internal/msgcat"
	"github.com/park285/sharpness-board/pkg/boarddto"
)

func buildView(id string, version uint64, snap game.Snapshot, coord *analysis.Coordinator, msgs *msgcat.Catalog) boarddto.View {
	moves := make([]boarddto.Move, len(snap.Moves))
	for i, mv := range snap.Moves {
		moves[i] = boarddto.Move{Ply: i, SAN: mv.SAN, UCI: mv.UCI, From: mv.From, To: mv.To, Promotion: mv.Promotion}
	}
	return boarddto.View{
		SessionID:   id,
		Version:     version,
		Mode:        snap.Mode.String(),
		Dialog:      snap.Dialog.String(),
		Orientation: snap.Orientation.String(),
		FEN:         snap.Position.FEN(),
		Turn:        snap.Position.Turn(),
		EditBuffer:  snap.Buffer,
		Cursor:      snap.Cursor,
		Moves:       moves,
		MoveRows:    moveRows(snap.Base, snap.Moves, snap.Cursor),
		Position:    positionPane(coord.Position, msgs),
		Game:        gamePane(coord.Game, msgs),
	}
}

// moveRows numbers plies from the base position. A base with Black to move
// leaves the first White cell as "...".
func moveRows(base engine.Position, moves []engine.Move, cursor int) []boarddto.MoveRow {
	if len(moves) == 0 {
		return nil
	}
	offset := 0
	if base.Turn() == "black" {
		offset = 1
	}
	first := base.FullMove()
	rows := make([]boarddto.MoveRow, (len(moves)+offset+1)/2)
	for i := range rows {
		rows[i] = boarddto.MoveRow{Number: first + i, WhitePly: -1, BlackPly: -1}
	}
	if offset == 1 {
		rows[0].White = "..."
	}
	for i, mv := range moves {
		slot := i + offset
		row := &rows[slot/2]
		if slot%2 == 0 {
			row.White, row.WhitePly = mv.SAN, i
		} else {
			row.Black, row.BlackPly = mv.SAN, i
		}
		if i == cursor {
			row.Current = true
		}
	}
	return rows
}

func positionPane(slot analysis.Slot[analysis.Score], msgs *msgcat.Catalog) boarddto.PositionPane {
	pane := boarddto.PositionPane{Status: slot.Status.String()}
	switch slot.Status {
	case analysis.Loading:
		pane.Lines = []string{msgs.Text("results.loading_position", nil)}
	case analysis.Ready:
		sharp, eval := slot.Value.Sharpness, slot.Value.Evaluation
		pane.Sharpness, pane.Evaluation = &sharp, &eval
		pane.Lines = []string{
			msgs.Text("results.sharpness", map[string]any{"Value": sharp}),
			msgs.Text("results.evaluation", map[string]any{"Value": eval}),
		}
	case analysis.Failed:
		pane.Error = msgs.Text("results.failed", map[string]any{"Reason": slot.Err})
	}
	return pane
}

func gamePane(slot analysis.Slot[analysis.GameResult], msgs *msgcat.Catalog) boarddto.GamePane {
	pane := boarddto.GamePane{Status: slot.Status.String()}
	switch slot.Status {
	case analysis.Loading:
		pane.Loading = msgs.Text("results.loading_game", nil)
	case analysis.Ready:
		pane.Points = make([]boarddto.ChartPoint, len(slot.Value.Chart))
		for i, p := range slot.Value.Chart {
			pane.Points[i] = boarddto.ChartPoint{
				Ply:        p.Ply,
				Label:      p.Label,
				Sharpness:  p.Sharpness,
				Evaluation: slot.Value.Plies[i].Evaluation,
			}
		}
	case analysis.Failed:
		pane.Error = msgs.Text("results.failed", map[string]any{"Reason": slot.Err})
	}
	return pane
}
