package analysis

import "strconv"

// ChartPoint is one ply on the sharpness chart.
type ChartPoint struct {
	Ply       int
	Label     string
	Sharpness float64
}

// PlyLabel is "N." for a White ply and "N..." for a Black ply.
func PlyLabel(ply int) string {
	n := strconv.Itoa(ply/2 + 1)
	if ply%2 == 0 {
		return n + "."
	}
	return n + "..."
}

func Series(plies []Score) []ChartPoint {
	out := make([]ChartPoint, len(plies))
	for i, s := range plies {
		out[i] = ChartPoint{Ply: i, Label: PlyLabel(i), Sharpness: s.Sharpness}
	}
	return out
}
