package tracking

import (
	"backend-runtracker/internal/location"
	"backend-runtracker/internal/shared/geo"
)

// DistanceAccumulator sums great-circle distance over consecutive samples.
// The total is kept unrounded.
type DistanceAccumulator struct {
	anchor    location.Sample
	hasAnchor bool
	total     float64
}

// Add returns the distance this sample contributed. The first sample after a
// reset only becomes the anchor.
func (a *DistanceAccumulator) Add(sample location.Sample) float64 {
	if !a.hasAnchor {
		a.anchor = sample
		a.hasAnchor = true
		return 0
	}
	delta := geo.HaversineMeters(a.anchor.Latitude, a.anchor.Longitude, sample.Latitude, sample.Longitude)
	a.total += delta
	a.anchor = sample
	return delta
}

func (a *DistanceAccumulator) Total() float64 {
	return a.total
}

func (a *DistanceAccumulator) Reset() {
	*a = DistanceAccumulator{}
}
