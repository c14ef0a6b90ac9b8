// Package gamemath holds the pure math behind the games: random sources,
// binomial probabilities, weighted draws and calibrated payout tables.
package gamemath

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

// Rand yields uniform floats in [0, 1).
type Rand interface {
	Float64() float64
}

// RandFunc adapts a function to Rand.
type RandFunc func() float64

func (f RandFunc) Float64() float64 { return f() }

type secureRand struct{}

// entropy feeds Secure; tests swap it.
var entropy io.Reader = rand.Reader

// Secure returns a Rand backed by crypto/rand (CSPRNG).
func Secure() Rand { return secureRand{} }

// Float64 uses the top 53 bits of 8 random bytes. It panics when the entropy
// source fails: any fallback value would be a biased outcome.
func (secureRand) Float64() float64 {
	var b [8]byte
	if _, err := io.ReadFull(entropy, b[:]); err != nil {
		panic(fmt.Errorf("gamemath: entropy source failed: %w", err))
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Intn returns a uniform int in [0, n) from r.
func Intn(r Rand, n int) int {
	if n <= 0 {
		return 0
	}
	v := int(r.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Round2 rounds v to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Combination returns C(n, k) as a float64, computed multiplicatively.
func Combination(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	if k > n-k {
		k = n - k
	}
	result := 1.0
	for i := 1; i <= k; i++ {
		result = result * float64(n-k+i) / float64(i)
	}
	return result
}

// BinomialProbabilities returns P(i) = C(n, i) / 2^n for i in [0, n].
func BinomialProbabilities(n int) []float64 {
	if n < 0 {
		return nil
	}
	denom := math.Pow(2, float64(n))
	out := make([]float64, n+1)
	for i := range out {
		out[i] = Combination(n, i) / denom
	}
	return out
}

// Sequence replays values in order and then repeats the last one. Tests use
// it to script draws.
func Sequence(values ...float64) Rand {
	var mu sync.Mutex
	i := 0
	return RandFunc(func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(values) == 0 {
			return 0
		}
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	})
}

// Color returns a random "#RRGGBB" string.
func Color(r Rand) string {
	return fmt.Sprintf("#%06X", Intn(r, 1<<24))
}
