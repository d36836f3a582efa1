// Package consensus implements the consensus-refinement stage: given a
// fresh plateau detection and the recent per-device history of raw
// weights, it searches for a tighter window near the historical median
// before the raw detection is accepted as final.
package consensus

import (
	"math"
	"sort"

	"github.com/autoscalehub/autoscale/internal/stats"
	"github.com/autoscalehub/autoscale/pkg/model"
)

const epsilon = 1e-9

// Refine runs the consensus search over samples given the fresh raw
// detection and up to the 10 most recent prior raw weights for the same
// device. band is the acceptance tolerance in kg (spec default 1.0).
//
// Returns the consensus scalar (always computed) and, if a qualifying
// window was found, the consensus detection; otherwise a nil detection
// and the raw result stands.
func Refine(samples []model.Sample, raw model.RawDetection, recentRawWeights []float64, band float64) (consensusKg float64, detection *model.ConsensusDetection) {
	all := append([]float64{raw.Weight}, recentRawWeights...)
	consensusKg = stats.Median(all)

	pts := preprocess(samples)
	if len(pts) == 0 {
		return consensusKg, nil
	}

	t := make([]float64, len(pts))
	kg := make([]float64, len(pts))
	for i, p := range pts {
		t[i] = p.t
		kg[i] = p.kg
	}

	hz := sampleRateHz(t)
	win := maxInt(5, int(math.Round(3*hz)))

	tFirst, tLast := t[0], t[len(t)-1]
	duration := tLast - tFirst
	tailStart := math.Max(tFirst, math.Max(tLast-12, tFirst+0.75*duration))

	if best, ok := bestWindow(t, kg, win, tailStart, tLast, consensusKg, band); ok {
		return consensusKg, best
	}
	if best, ok := bestWindow(t, kg, win, tFirst, tLast, consensusKg, band); ok {
		return consensusKg, best
	}
	return consensusKg, nil
}

type point struct{ t, kg float64 }

// preprocess re-applies the positive-floor filter used by the detector
// (kept here as an unexported mirror so this package does not need to
// reach into detector's internals for a one-line filter).
func preprocess(samples []model.Sample) []point {
	pts := make([]point, len(samples))
	for i, s := range samples {
		pts[i] = point{t: float64(s.T) / 1000.0, kg: s.Kg}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].t < pts[j].t })
	if len(pts) == 0 {
		return pts
	}
	t0 := pts[0].t
	for i := range pts {
		pts[i].t -= t0
	}

	var positives, all []float64
	for _, p := range pts {
		all = append(all, p.kg)
		if p.kg > 0 {
			positives = append(positives, p.kg)
		}
	}
	medPos := stats.Median(positives)
	lowCut := math.Max(0.5*medPos, stats.Percentile(all, 5))

	out := make([]point, 0, len(pts))
	for _, p := range pts {
		if p.kg >= lowCut {
			out = append(out, p)
		}
	}
	return out
}

func sampleRateHz(t []float64) float64 {
	var deltas []float64
	for i := 1; i < len(t); i++ {
		d := t[i] - t[i-1]
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	med := stats.Median(deltas)
	if med <= 0 {
		return 1
	}
	return 1 / med
}

// bestWindow slides a win-sized window over (t, kg) restricted to
// t >= lo and t <= hi, scoring each candidate whose median lies within
// band of consensusKg, and returns the best-scoring one.
func bestWindow(t, kg []float64, win int, lo, hi, consensusKg, band float64) (*model.ConsensusDetection, bool) {
	n := len(t)
	var startIdx int
	for startIdx = 0; startIdx < n && t[startIdx] < lo; startIdx++ {
	}

	tFirst, tLast := t[0], t[n-1]

	var best *model.ConsensusDetection
	var bestScore float64
	found := false

	for a := startIdx; a+win <= n; a++ {
		b := a + win
		if t[b-1] > hi {
			break
		}
		window := kg[a:b]
		m := stats.Median(window)
		sigma := stats.StdDev(window)
		if math.Abs(m-consensusKg) > band {
			continue
		}
		tMid := (t[a] + t[b-1]) / 2
		late := 0.5 + 0.5*(tMid-tFirst)/math.Max(tLast-tFirst, epsilon)
		score := ((band - math.Abs(m-consensusKg)) / band) * (1 / (sigma + epsilon)) * late

		if !found || score > bestScore {
			bestScore = score
			found = true
			best = &model.ConsensusDetection{
				Weight:      m,
				Uncertainty: sigma / math.Sqrt(float64(win)),
				Mode:        model.ModeConsensus,
				StartS:      t[a],
				EndS:        t[b-1],
				BandKg:      band,
			}
		}
	}
	return best, found
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
