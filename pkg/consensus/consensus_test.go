package consensus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoscalehub/autoscale/pkg/consensus"
	"github.com/autoscalehub/autoscale/pkg/detector"
	"github.com/autoscalehub/autoscale/pkg/model"
)

func plateauSamples(n int, base float64) []model.Sample {
	samples := make([]model.Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = model.Sample{T: int64(i * 100), Kg: base}
	}
	return samples
}

func TestRefineNoWindowWithinBandReturnsNil(t *testing.T) {
	samples := plateauSamples(50, 7.9)
	raw := detector.Detect(samples)
	recent := []float64{10.1, 10.0, 10.2, 9.9, 10.0}

	consensusKg, result := consensus.Refine(samples, raw, recent, 1.0)

	assert.InDelta(t, 10.0, consensusKg, 0.1)
	assert.Nil(t, result)
}

func TestRefineWindowWithinBandReturnsResult(t *testing.T) {
	samples := plateauSamples(50, 9.3)
	raw := detector.Detect(samples)
	recent := []float64{10.1, 10.0, 10.2, 9.9, 10.0}

	consensusKg, result := consensus.Refine(samples, raw, recent, 1.0)

	assert.InDelta(t, 10.0, consensusKg, 0.1)
	if assert.NotNil(t, result) {
		assert.Equal(t, model.ModeConsensus, result.Mode)
		assert.LessOrEqual(t, result.Weight, consensusKg+1.0)
		assert.GreaterOrEqual(t, result.Weight, consensusKg-1.0)
	}
}

func TestRefineEmptySamplesReturnsNil(t *testing.T) {
	consensusKg, result := consensus.Refine(nil, model.RawDetection{Weight: 5}, nil, 1.0)
	assert.Equal(t, 5.0, consensusKg)
	assert.Nil(t, result)
}

func TestRefineConsensusIsMedianOfRawAndHistory(t *testing.T) {
	raw := model.RawDetection{Weight: 5.0}
	recent := []float64{4.0, 6.0}
	consensusKg, _ := consensus.Refine(nil, raw, recent, 1.0)
	assert.Equal(t, 5.0, consensusKg)
}
