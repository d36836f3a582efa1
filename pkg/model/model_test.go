package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoscalehub/autoscale/pkg/model"
)

func TestEventDerive(t *testing.T) {
	cases := []struct {
		name       string
		samples    []model.Sample
		wantPeak   float64
		wantCount  int
	}{
		{"empty", nil, 0, 0},
		{"single", []model.Sample{{T: 0, Kg: 5.2}}, 5.2, 1},
		{
			"peak in middle",
			[]model.Sample{{T: 0, Kg: 1}, {T: 100, Kg: 9.3}, {T: 200, Kg: 4}},
			9.3, 3,
		},
		{
			"negative values",
			[]model.Sample{{T: 0, Kg: -2}, {T: 10, Kg: -1}},
			-1, 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := model.Event{Samples: tc.samples}
			e.Derive()
			assert.Equal(t, tc.wantCount, e.SampleCount)
			assert.Equal(t, tc.wantPeak, e.PeakKg)
		})
	}
}

func TestEventDeriveIdempotent(t *testing.T) {
	e := model.Event{Samples: []model.Sample{{T: 0, Kg: 3}, {T: 1, Kg: 7}}}
	e.Derive()
	first := e.PeakKg
	e.Derive()
	assert.Equal(t, first, e.PeakKg)
}
