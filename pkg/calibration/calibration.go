// Package calibration implements the calibration engine (§4.C):
// tare, single- and two-point calibration, the pre-measurement plateau
// gate, and persistence of the counts-per-gram factor.
package calibration

import (
	"errors"
	"time"

	"github.com/autoscalehub/autoscale/internal/stats"
	"github.com/autoscalehub/autoscale/pkg/adc"
	"github.com/autoscalehub/autoscale/pkg/sampler"
)

// DefaultCountsPerGram is the compile-time default restored by Reset.
const DefaultCountsPerGram = 420.0

// minMassDeltaG is the small floor two-point calibration's |m2 - m1|
// must exceed.
const minMassDeltaG = 5.0

var (
	ErrTareFailed        = errors.New("calibration: tare failed, zero reads succeeded")
	ErrMassDeltaTooSmall = errors.New("calibration: two-point masses too close")
	ErrPlateauTimeout    = errors.New("calibration: plateau gate timed out")
)

// Store holds the counts-per-gram factor; the zero offset is not stored.
// The only implementation in this module is MemStore, which
// cmd/scale-firmware also uses, so the factor does not survive a restart.
type Store interface {
	Load() (countsPerGram float64, ok bool)
	Save(countsPerGram float64)
	Delete()
}

// MemStore is an in-memory Store used by the firmware simulator and
// tests.
type MemStore struct {
	value float64
	set   bool
}

func (s *MemStore) Load() (float64, bool) { return s.value, s.set }
func (s *MemStore) Save(v float64)        { s.value = v; s.set = true }
func (s *MemStore) Delete()               { s.value = 0; s.set = false }

// Clock abstracts time for timeout handling in tests.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time      { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Engine runs calibration procedures against an ADC reader and persists
// results to a Store.
type Engine struct {
	reader adc.Reader
	store  Store
	clock  Clock

	CountsPerGram float64
	ZeroOffset    int32
	SignInverted  bool

	TarePerReadTimeout time.Duration
	TareOverallTimeout time.Duration
	TareReadCount      int

	PlateauTimeout     time.Duration
	PlateauWindowSize  int
	PlateauMinDuration time.Duration
}

// New returns an Engine with the reference-design defaults from §5's
// cancellation/timeout budgets, loading a persisted factor if present.
func New(reader adc.Reader, store Store, clock Clock) *Engine {
	if clock == nil {
		clock = realClock{}
	}
	e := &Engine{
		reader:             reader,
		store:              store,
		clock:              clock,
		CountsPerGram:      DefaultCountsPerGram,
		TarePerReadTimeout: 500 * time.Millisecond,
		TareOverallTimeout: 12 * time.Second,
		TareReadCount:      16,
		PlateauTimeout:     60 * time.Second,
		PlateauWindowSize:  20,
		PlateauMinDuration: 2 * time.Second,
	}
	if v, ok := store.Load(); ok {
		e.CountsPerGram = v
	}
	return e
}

// Tare averages TareReadCount raw reads to obtain a zero offset. Fails if
// zero reads succeed within the overall timeout.
func (e *Engine) Tare() error {
	start := e.clock.Now()
	var reads []float64

	for len(reads) < e.TareReadCount {
		if e.clock.Now().Sub(start) > e.TareOverallTimeout {
			break
		}
		if e.reader.IsReady() {
			reads = append(reads, float64(e.reader.ReadRaw()))
		}
		e.clock.Sleep(time.Millisecond)
	}

	if len(reads) == 0 {
		return ErrTareFailed
	}
	e.ZeroOffset = int32(stats.Mean(reads))
	e.reader.SetOffset(e.ZeroOffset)
	return nil
}

// plateauGate requires two consecutive low-dispersion windows whose
// means differ by no more than max(1% of |mean|, 2000 counts), combined
// stable duration >= PlateauMinDuration.
func (e *Engine) plateauGate() error {
	deadline := e.clock.Now().Add(e.PlateauTimeout)
	var prevMean float64
	var havePrev bool
	var stableStart time.Time

	for e.clock.Now().Before(deadline) {
		window := e.collectWindow(e.PlateauWindowSize)
		e.clock.Sleep(time.Millisecond)
		mean := stats.Mean(window)
		sd := stats.StdDev(window)
		lowDispersion := sd <= maxF(0.01*absF(mean), 2000)

		if !lowDispersion {
			havePrev = false
			continue
		}

		if havePrev {
			tol := maxF(0.01*absF(mean), 2000)
			if absF(mean-prevMean) <= tol {
				if stableStart.IsZero() {
					stableStart = e.clock.Now()
				}
				if e.clock.Now().Sub(stableStart) >= e.PlateauMinDuration {
					return nil
				}
			} else {
				stableStart = time.Time{}
			}
		}
		prevMean = mean
		havePrev = true
	}
	return ErrPlateauTimeout
}

func (e *Engine) collectWindow(n int) []float64 {
	out := make([]float64, 0, n)
	for len(out) < n {
		if e.reader.IsReady() {
			out = append(out, float64(e.reader.ReadRaw()))
		}
	}
	return out
}

// SinglePoint calibrates against one known mass mGrams. It tares, gates
// on a plateau, takes a stable raw reading, and sets
// CountsPerGram = r / mGrams.
func (e *Engine) SinglePoint(mGrams float64) error {
	if err := e.Tare(); err != nil {
		return err
	}
	if err := e.plateauGate(); err != nil {
		return err
	}
	r := sampler.ReadStableRaw(e.reader, sampler.Params{
		MinSamples:      32,
		MaxSamples:      256,
		MaxStdDevCounts: 2000,
		MinDuration:     500 * time.Millisecond,
		ReadInterval:    time.Millisecond,
	}, e.clock)

	e.CountsPerGram = float64(r) / mGrams
	e.store.Save(e.CountsPerGram)
	return nil
}

// TwoPoint calibrates from two independently captured (r, m) pairs.
func (e *Engine) TwoPoint(r1 int32, m1 float64, r2 int32, m2 float64) error {
	if absF(m2-m1) < minMassDeltaG {
		return ErrMassDeltaTooSmall
	}
	e.CountsPerGram = float64(r2-r1) / (m2 - m1)
	e.store.Save(e.CountsPerGram)
	return nil
}

// Reset deletes the persisted factor and reverts to the compile-time
// default.
func (e *Engine) Reset() {
	e.store.Delete()
	e.CountsPerGram = DefaultCountsPerGram
}

// Convert applies the current calibration (and sign inversion) to a raw
// reading.
func (e *Engine) Convert(raw int32) float64 {
	kg := float64(raw-e.ZeroOffset) / e.CountsPerGram / 1000.0
	if e.SignInverted {
		kg = -kg
	}
	return kg
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
