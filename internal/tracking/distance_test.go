package tracking

import (
	"testing"

	"backend-runtracker/internal/location"
	"backend-runtracker/internal/shared/geo"

	"github.com/stretchr/testify/assert"
)

func TestDistanceAccumulator_FirstSampleAnchors(t *testing.T) {
	var acc DistanceAccumulator
	assert.Equal(t, 0.0, acc.Add(location.Sample{Latitude: 10, Longitude: 10}))
	assert.Equal(t, 0.0, acc.Total())
}

func TestDistanceAccumulator_EquatorReference(t *testing.T) {
	var acc DistanceAccumulator
	acc.Add(location.Sample{Latitude: 0, Longitude: 0})
	acc.Add(location.Sample{Latitude: 0, Longitude: 0.001})
	assert.InDelta(t, 111.2, acc.Total(), 0.1)
}

func TestDistanceAccumulator_SumsConsecutivePairs(t *testing.T) {
	track := []location.Sample{
		{Latitude: 51.5007, Longitude: -0.1246},
		{Latitude: 51.5010, Longitude: -0.1240},
		{Latitude: 51.5020, Longitude: -0.1235},
		{Latitude: 51.5021, Longitude: -0.1220},
		{Latitude: 51.5015, Longitude: -0.1210},
	}

	var acc DistanceAccumulator
	want := 0.0
	for i, s := range track {
		acc.Add(s)
		if i > 0 {
			prev := track[i-1]
			want += geo.HaversineMeters(prev.Latitude, prev.Longitude, s.Latitude, s.Longitude)
		}
		assert.InDelta(t, want, acc.Total(), 1e-9, "after sample %d", i+1)
	}
}

func TestDistanceAccumulator_ResetClearsAnchor(t *testing.T) {
	var acc DistanceAccumulator
	acc.Add(location.Sample{Latitude: 0, Longitude: 0})
	acc.Add(location.Sample{Latitude: 0, Longitude: 1})
	acc.Reset()

	assert.Equal(t, 0.0, acc.Total())
	assert.Equal(t, 0.0, acc.Add(location.Sample{Latitude: 5, Longitude: 5}))
}

func TestDistanceAccumulator_KeepsUnroundedTotal(t *testing.T) {
	var acc DistanceAccumulator
	acc.Add(location.Sample{Latitude: 0, Longitude: 0})
	for i := 1; i <= 10; i++ {
		acc.Add(location.Sample{Latitude: 0, Longitude: float64(i) * 0.000004})
	}
	// ten steps of ~0.44 m each would round to zero individually
	assert.InDelta(t, 4.45, acc.Total(), 0.01)
}
