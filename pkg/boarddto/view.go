package boarddto

// View is the derived state a renderer needs to draw one session.
type View struct {
	SessionID   string       `json:"session_id"`
	Version     uint64       `json:"version"`
	Mode        string       `json:"mode"`
	Dialog      string       `json:"dialog"`
	Orientation string       `json:"orientation"`
	FEN         string       `json:"fen"`
	Turn        string       `json:"turn"`
	EditBuffer  string       `json:"edit_buffer"`
	Cursor      int          `json:"cursor"`
	Moves       []Move       `json:"moves"`
	MoveRows    []MoveRow    `json:"move_rows"`
	Position    PositionPane `json:"position_analysis"`
	Game        GamePane     `json:"game_analysis"`
}

type Move struct {
	Ply       int    `json:"ply"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MoveRow pairs a White ply with the Black reply. Ply indices are -1 when absent.
type MoveRow struct {
	Number   int    `json:"number"`
	White    string `json:"white"`
	Black    string `json:"black,omitempty"`
	WhitePly int    `json:"white_ply"`
	BlackPly int    `json:"black_ply"`
	Current  bool   `json:"current"`
}

// PositionPane is the results panel for a single-position request.
type PositionPane struct {
	Status     string   `json:"status"`
	Sharpness  *float64 `json:"sharpness,omitempty"`
	Evaluation *float64 `json:"evaluation,omitempty"`
	Lines      []string `json:"lines,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// GamePane is the whole-game analysis panel with its chart series.
type GamePane struct {
	Status  string       `json:"status"`
	Loading string       `json:"loading,omitempty"`
	Points  []ChartPoint `json:"points,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type ChartPoint struct {
	Ply        int     `json:"ply"`
	Label      string  `json:"label"`
	Sharpness  float64 `json:"sharpness"`
	Evaluation float64 `json:"evaluation"`
}
