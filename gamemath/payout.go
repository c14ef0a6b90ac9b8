package gamemath

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Risk selects a drop-game volatility tier.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Row bounds accepted by the drop game.
const (
	MinRows = 8
	MaxRows = 16
)

var (
	ErrUnknownRisk = errors.New("gamemath: unknown risk tier")
	ErrRowsRange   = errors.New("gamemath: rows out of range")
)

// Tier holds the fixed shaping constants for one risk level.
type Tier struct {
	Min       float64 `json:"min" yaml:"min"`
	Max       float64 `json:"max" yaml:"max"`
	TargetRTP float64 `json:"targetRtp" yaml:"target_rtp"`
	Power     float64 `json:"power" yaml:"power"`
}

// DefaultTiers are the production tiers: low 0.8-10x, medium 0.5-80x, high 0.2-1000x.
func DefaultTiers() map[Risk]Tier {
	return map[Risk]Tier{
		RiskLow:    {Min: 0.8, Max: 10, TargetRTP: 0.97, Power: 1.5},
		RiskMedium: {Min: 0.5, Max: 80, TargetRTP: 0.96, Power: 2.0},
		RiskHigh:   {Min: 0.2, Max: 1000, TargetRTP: 0.95, Power: 2.5},
	}
}

// PayoutTable is a calibrated multiplier per landing bucket. It is never
// mutated after BuildTable returns.
type PayoutTable struct {
	Risk          Risk      `json:"risk"`
	Rows          int       `json:"rows"`
	Multipliers   []float64 `json:"multipliers"`
	Probabilities []float64 `json:"probabilities"`
	// RTP is the realized expected return of Multipliers.
	RTP float64 `json:"rtp"`
	// Tolerance bounds |RTP - TargetRTP|; it is the probability-weighted
	// distance between the final table and the exactly scaled one.
	Tolerance float64 `json:"tolerance"`
	TargetRTP float64 `json:"targetRtp"`
}

// Multiplier returns the multiplier for bucket, clamping the index into range.
func (t *PayoutTable) Multiplier(bucket int) float64 {
	if bucket < 0 {
		bucket = 0
	}
	if bucket >= len(t.Multipliers) {
		bucket = len(t.Multipliers) - 1
	}
	return t.Multipliers[bucket]
}

// BuildTable calibrates a table for rows against tier. Edge buckets are pinned
// to tier.Max and the center bucket(s) to tier.Min; every other bucket follows
// min + (max-min)*d^power, is rescaled toward tier.TargetRTP and clamped.
func BuildTable(risk Risk, tier Tier, rows int) *PayoutTable {
	buckets := rows + 1
	center := float64(rows) / 2
	lo, hi := int(math.Floor(center)), int(math.Ceil(center))

	forced := func(i int) (float64, bool) {
		switch {
		case i == 0 || i == buckets-1:
			return tier.Max, true
		case i == lo || i == hi:
			return tier.Min, true
		}
		return 0, false
	}

	raw := make([]float64, buckets)
	for i := range raw {
		if v, ok := forced(i); ok {
			raw[i] = v
			continue
		}
		d := 0.0
		if center > 0 {
			d = math.Abs(float64(i)-center) / center
		}
		raw[i] = Round2(tier.Min + (tier.Max-tier.Min)*math.Pow(d, tier.Power))
	}

	probs := BinomialProbabilities(rows)
	var ev float64
	for i, m := range raw {
		ev += probs[i] * m
	}
	scale := 1.0
	if ev > 0 {
		scale = tier.TargetRTP / ev
	}

	out := make([]float64, buckets)
	var rtp, drift float64
	for i, m := range raw {
		if v, ok := forced(i); ok {
			out[i] = v
		} else {
			out[i] = Round2(clamp(m*scale, tier.Min, tier.Max))
		}
		rtp += probs[i] * out[i]
		drift += probs[i] * math.Abs(out[i]-m*scale)
	}

	return &PayoutTable{
		Risk:          risk,
		Rows:          rows,
		Multipliers:   out,
		Probabilities: probs,
		RTP:           rtp,
		Tolerance:     drift + 1e-9,
		TargetRTP:     tier.TargetRTP,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type tableKey struct {
	risk Risk
	rows int
}

// TableBuilder memoizes BuildTable per (risk, rows).
type TableBuilder struct {
	tiers map[Risk]Tier

	mu    sync.Mutex
	cache map[tableKey]*PayoutTable
}

// NewTableBuilder returns a builder over tiers; nil means DefaultTiers.
func NewTableBuilder(tiers map[Risk]Tier) *TableBuilder {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &TableBuilder{tiers: tiers, cache: make(map[tableKey]*PayoutTable)}
}

// Table returns the cached table for (risk, rows), building it on first use.
func (b *TableBuilder) Table(risk Risk, rows int) (*PayoutTable, error) {
	tier, ok := b.tiers[risk]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRisk, risk)
	}
	if rows < MinRows || rows > MaxRows {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrRowsRange, rows, MinRows, MaxRows)
	}
	key := tableKey{risk, rows}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.cache[key]; ok {
		return t, nil
	}
	t := BuildTable(risk, tier, rows)
	b.cache[key] = t
	return t, nil
}

// Risks lists the configured tiers in a stable order.
func (b *TableBuilder) Risks() []Risk {
	out := make([]Risk, 0, len(b.tiers))
	for r := range b.tiers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return b.tiers[out[i]].Max < b.tiers[out[j]].Max })
	return out
}

// Rows lists every supported row count.
func Rows() []int {
	out := make([]int, 0, MaxRows-MinRows+1)
	for r := MinRows; r <= MaxRows; r++ {
		out = append(out, r)
	}
	return out
}
