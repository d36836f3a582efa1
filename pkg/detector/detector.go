// Package detector implements plateau detection over a captured event's
// raw sample trace: outlier-robust filtering, derivative/variance gating,
// plateau scoring, and a tail-median fallback when no region qualifies.
package detector

import (
	"math"
	"sort"

	"github.com/autoscalehub/autoscale/internal/stats"
	"github.com/autoscalehub/autoscale/pkg/model"
)

const (
	minSurvivors    = 10
	hampelWindow    = 15
	hampelThreshold = 4.0
	minDurationS    = 3.0
	epsilon         = 1e-9
)

// point is a preprocessed (t seconds, kg) pair.
type point struct {
	t  float64
	kg float64
}

// Detect runs the full plateau-v6 pipeline over samples and returns the
// raw detection. samples need not be pre-sorted by t.
func Detect(samples []model.Sample) model.RawDetection {
	pts := toSeconds(samples)

	survivors := positiveFloorFilter(pts)
	if len(survivors) < minSurvivors {
		return tailMedianFallback(pts)
	}

	kg := kgs(survivors)
	t := ts(survivors)

	filtered := stats.Hampel(kg, hampelWindow, hampelThreshold)

	hz := sampleRateHz(t)
	smoothWindow := maxInt(3, roundInt(0.6*hz))
	smoothed := stats.MovingAverage(filtered, smoothWindow)

	deriv := stats.CentralDiff(t, smoothed)

	stdWindow := maxInt(5, roundInt(3*hz))
	rollingStd := stats.RollingStdDev(filtered, stdWindow)

	absDeriv := stats.Abs(deriv)
	derivTh := stats.Clamp(0.6*stats.Median(absDeriv), 0.01, 0.05)

	positiveStd := positiveOnly(rollingStd)
	stdTh := stats.Clamp(0.9*stats.Median(positiveStd), 0.06, 0.20)

	runs := stableRuns(absDeriv, rollingStd, derivTh, stdTh)

	best, ok := bestRegion(runs, t, kg, absDeriv, rollingStd, derivTh, stdTh)
	if !ok {
		return tailMedianFallback(pts)
	}
	return best
}

func toSeconds(samples []model.Sample) []point {
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
	return pts
}

// positiveFloorFilter keeps only samples at or above low_cut =
// max(0.5*med_pos, 5th percentile of all kg).
func positiveFloorFilter(pts []point) []point {
	var positives []float64
	all := make([]float64, len(pts))
	for i, p := range pts {
		all[i] = p.kg
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

// sampleRateHz is 1 / median(positive inter-sample delta-t).
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

type run struct {
	a, b int
}

func stableRuns(absDeriv, rollingStd []float64, derivTh, stdTh float64) []run {
	n := len(absDeriv)
	var runs []run
	i := 0
	for i < n {
		if absDeriv[i] <= derivTh && rollingStd[i] <= stdTh {
			j := i
			for j < n && absDeriv[j] <= derivTh && rollingStd[j] <= stdTh {
				j++
			}
			runs = append(runs, run{a: i, b: j})
			i = j
		} else {
			i++
		}
	}
	return runs
}

func bestRegion(runs []run, t, kg, absDeriv, rollingStd []float64, derivTh, stdTh float64) (model.RawDetection, bool) {
	if len(t) == 0 {
		return model.RawDetection{}, false
	}
	tFirst, tLast := t[0], t[len(t)-1]

	var bestScore float64
	var bestRun run
	found := false

	for _, r := range runs {
		duration := t[r.b-1] - t[r.a]
		if duration < minDurationS {
			continue
		}
		meanDeriv := stats.Mean(absDeriv[r.a:r.b])
		meanStd := stats.Mean(rollingStd[r.a:r.b])
		base := duration * (derivTh / (meanDeriv + epsilon)) * (stdTh / (meanStd + epsilon))

		tMid := (t[r.a] + t[r.b-1]) / 2
		late := 0.5 + 0.5*(tMid-tFirst)/math.Max(tLast-tFirst, epsilon)
		score := base * late

		if !found || score > bestScore {
			bestScore = score
			bestRun = r
			found = true
		}
	}
	if !found {
		return model.RawDetection{}, false
	}

	a, b := bestRun.a, bestRun.b
	window := kg[a:b]
	weight := stats.Median(window)
	uncertainty := stats.StdDev(window) / math.Sqrt(float64(b-a))
	meanDeriv := stats.Mean(absDeriv[a:b])
	meanStd := stats.Mean(rollingStd[a:b])
	quality := stats.Clamp(
		0.5*(1-meanDeriv/derivTh)+0.5*(1-meanStd/stdTh),
		0, 1,
	)

	return model.RawDetection{
		Weight:         weight,
		Uncertainty:    uncertainty,
		Quality:        quality,
		Mode:           model.ModePlateauV6,
		StartS:         t[a],
		EndS:           t[b-1],
		MeanDeriv:      meanDeriv,
		MeanDispersion: meanStd,
		NPoints:        b - a,
	}, true
}

// tailMedianFallback is used when fewer than minSurvivors points remain
// after the positive-floor filter, or no region meets the duration
// minimum. It operates over the original (unfiltered) points.
func tailMedianFallback(pts []point) model.RawDetection {
	if len(pts) == 0 {
		return model.RawDetection{Mode: model.ModeFallback, Quality: 0.65}
	}
	tFirst := pts[0].t
	tLast := pts[len(pts)-1].t
	duration := tLast - tFirst
	tailLen := math.Max(12, 0.25*duration)
	tailStart := math.Max(tFirst, tLast-tailLen)

	var tailKg []float64
	for _, p := range pts {
		if p.t >= tailStart {
			tailKg = append(tailKg, p.kg)
		}
	}

	return model.RawDetection{
		Weight:      stats.Median(tailKg),
		Uncertainty: stats.StdErr(tailKg),
		Quality:     0.65,
		Mode:        model.ModeFallback,
		StartS:      tailStart,
		EndS:        tLast,
		NPoints:     len(tailKg),
	}
}

func kgs(pts []point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.kg
	}
	return out
}

func ts(pts []point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.t
	}
	return out
}

func positiveOnly(xs []float64) []float64 {
	var out []float64
	for _, x := range xs {
		if x > 0 {
			out = append(out, x)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func roundInt(x float64) int {
	return int(math.Round(x))
}
