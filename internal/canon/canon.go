// Package canon implements lossy coordinate canonicalization: rounding raw
// lat/lng to a stable cache/store key.
package canon

import (
	"math"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
)

// Canonicalize validates lat/lng ranges and rounds each component half-up
// to 4 fractional digits (~11m precision), attaching the configured query
// radius. Pure function; no side effects.
func Canonicalize(lat, lng float64, radiusMeters int) (model.CanonicalKey, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return model.CanonicalKey{}, model.NewError(model.ErrInvalidInput, "coordinates must be finite", nil)
	}
	if lat < -90 || lat > 90 {
		return model.CanonicalKey{}, model.NewError(model.ErrInvalidInput, "lat out of range [-90, 90]", nil)
	}
	if lng < -180 || lng > 180 {
		return model.CanonicalKey{}, model.NewError(model.ErrInvalidInput, "lng out of range [-180, 180]", nil)
	}

	return model.CanonicalKey{
		Lat:    roundHalfUp4(lat),
		Lng:    roundHalfUp4(lng),
		Radius: radiusMeters,
	}, nil
}

func roundHalfUp4(v float64) float64 {
	const scale = 1e4
	if v >= 0 {
		return math.Floor(v*scale+0.5) / scale
	}
	return -math.Floor(-v*scale+0.5) / scale
}
