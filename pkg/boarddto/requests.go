package boarddto

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type IndexRequest struct {
	Index int `json:"index"`
}

type FENRequest struct {
	FEN string `json:"fen"`
}

type BufferRequest struct {
	Text string `json:"text"`
}

type TranscriptRequest struct {
	PGN string `json:"pgn"`
}

// Result wraps every mutating response.
type Result struct {
	OK    bool   `json:"ok"`
	Error *Error `json:"error,omitempty"`
	View  *View  `json:"view,omitempty"`
}

type Created struct {
	ID   string `json:"id"`
	View View   `json:"view"`
}
