package gamemath

// Entry is one weighted candidate in a draw.
type Entry struct {
	ID     string
	Weight float64
}

// PickIndex returns the index of the first entry whose running cumulative
// weight reaches ticket. Non-positive weights never win. When ticket exceeds
// every cumulative sum (floating point slack) the last entry wins. It returns
// -1 for an empty slice.
func PickIndex(entries []Entry, ticket float64) int {
	if len(entries) == 0 {
		return -1
	}
	var cum float64
	for i, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		cum += e.Weight
		if ticket <= cum {
			return i
		}
	}
	return len(entries) - 1
}

// TotalWeight sums the positive weights.
func TotalWeight(entries []Entry) float64 {
	var total float64
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	return total
}

// WeightedDraw picks a winner with probability proportional to weight. It
// returns the winning index and the ticket drawn in [0, total), or -1 when no
// entry carries weight.
func WeightedDraw(r Rand, entries []Entry) (int, float64) {
	total := TotalWeight(entries)
	if total <= 0 {
		return -1, 0
	}
	ticket := r.Float64() * total
	return PickIndex(entries, ticket), ticket
}
