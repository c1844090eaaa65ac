package zone

import "math"

// Stat is the share of cells in one class.
type Stat struct {
	Class   Class   `json:"class"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summarize counts classes and their rounded percentage of the total, one Stat per class
// in ascending order. Percentages are rounded to one decimal.
func Summarize(classes []Class) []Stat {
	counts := make([]int, len(Classes))
	for _, c := range classes {
		if int(c) >= 0 && int(c) < len(counts) {
			counts[c]++
		}
	}
	stats := make([]Stat, len(Classes))
	for i, c := range Classes {
		stats[i] = Stat{Class: c, Count: counts[i]}
		if len(classes) > 0 {
			stats[i].Percent = math.Round(float64(counts[i])*1000/float64(len(classes))) / 10
		}
	}
	return stats
}
