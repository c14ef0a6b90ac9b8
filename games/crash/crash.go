package crash

import (
	"math"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
)

// Curve is the growth function coef(t) = 1 + BaseSpeed*t + Accel*t^2/2, with
// t in seconds since growth started.
type Curve struct {
	BaseSpeed float64
	Accel     float64
}

// Coefficient returns the multiplier after elapsed growth time.
func (c Curve) Coefficient(elapsed time.Duration) float64 {
	return c.At(elapsed.Seconds())
}

// At is Coefficient with t in seconds.
func (c Curve) At(t float64) float64 {
	if t < 0 {
		t = 0
	}
	return 1 + c.BaseSpeed*t + 0.5*c.Accel*t*t
}

// TimeTo solves coef(T) = cp for the non-negative root, in seconds. The
// rationalized form avoids cancellation between -b and the square root.
func (c Curve) TimeTo(cp float64) float64 {
	if cp <= 1 {
		return 0
	}
	d := cp - 1
	disc := c.BaseSpeed*c.BaseSpeed + 2*c.Accel*d
	return 2 * d / (c.BaseSpeed + math.Sqrt(disc))
}

// Duration is TimeTo truncated to whole milliseconds.
func (c Curve) Duration(cp float64) time.Duration {
	return time.Duration(math.Floor(c.TimeTo(cp)*1000)) * time.Millisecond
}

type band struct {
	upTo   float64 // cumulative percent
	lo, hi float64
}

// bands: ~75% in [1,2), then a thinning tail up to [50,1500).
var bands = []band{
	{75, 1, 2},
	{90, 3, 5},
	{95, 5, 10},
	{98, 10, 50},
	{100, 50, 1500},
}

// GenerateCrashPoint samples the crash multiplier mixture, rounded to 2 places.
func GenerateCrashPoint(r gamemath.Rand) float64 {
	u := r.Float64() * 100
	b := bands[len(bands)-1]
	for _, candidate := range bands {
		if u <= candidate.upTo {
			b = candidate
			break
		}
	}
	return gamemath.Round2(b.lo + r.Float64()*(b.hi-b.lo))
}
