package forecast

import (
	"math"
	"math/rand"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// BoundSource tags where an interval's bounds came from.
type BoundSource int

const (
	BoundAbsent BoundSource = iota
	BoundReal
	BoundSynthetic
)

// Interval is one uncertainty band around a point estimate.
type Interval struct {
	Lower  float64
	Upper  float64
	Source BoundSource
}

// Present reports whether the interval carries bounds at all.
func (iv Interval) Present() bool { return iv.Source != BoundAbsent }

// Bands holds every uncertainty band and threshold slot resolved for one
// record. Threshold slot 1 is the point estimate itself; slots 2-6 are the
// escalating severity cutoffs.
type Bands struct {
	HDI50      Interval
	HDI90      Interval
	HDI99      Interval
	Thresholds [6]float64
}

// Offset ranges for the synthetic draws. The threshold ranges widen
// monotonically so higher-severity slots sit further below the point
// estimate.
var thresholdOffsets = [5][2]float64{
	{0.001, 0.01},
	{0.01, 0.02},
	{0.02, 0.04},
	{0.03, 0.06},
	{0.05, 0.08},
}

// ResolveUncertainty builds the bands for one record. rec is the source
// interval row for the exact (grid, month) key, or nil when the source has
// none; ct selects which per-conflict-type pair carries the real 90% band.
//
// The 90% band is real-or-nothing: source bounds pass through verbatim and
// are never synthesized. The 50% and 99% bands and threshold slots 2-6 are
// synthesized from a generator seeded with floor(p*10000), so repeated calls
// with the same point estimate are byte-identical. The draw order is fixed;
// changing it changes every synthetic value.
func ResolveUncertainty(rec *models.UncertaintyRecord, p float64, ct models.ConflictType) Bands {
	var b Bands

	if rec != nil {
		lower, upper := rec.ProbBounds(ct)
		if lower.Valid && upper.Valid {
			// Pass-through, unvalidated: real source bounds are authoritative
			// even when they disagree with the point estimate.
			b.HDI90 = Interval{Lower: lower.Float64, Upper: upper.Float64, Source: BoundReal}
		}
	}

	rng := rand.New(rand.NewSource(int64(synthSeed(p))))

	b.HDI50 = synthInterval(rng, p, 0.001, 0.005)
	b.HDI99 = synthInterval(rng, p, 0.01, 0.03)

	b.Thresholds[0] = p
	for i, r := range thresholdOffsets {
		b.Thresholds[i+1] = clamp01(p - uniform(rng, r[0], r[1]))
	}

	return b
}

// synthSeed derives the generator seed from the point estimate:
// floor(p*10000) mod 2^32.
func synthSeed(p float64) uint32 {
	return uint32(int64(math.Floor(p * 10000)))
}

func synthInterval(rng *rand.Rand, p, lo, hi float64) Interval {
	lower := clamp01(p - uniform(rng, lo, hi))
	upper := clamp01(p + uniform(rng, lo, hi))
	if lower > upper {
		// Only possible when clamping collapses the band at a boundary.
		lower = upper
	}
	return Interval{Lower: lower, Upper: upper, Source: BoundSynthetic}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
