// SPDX-License-Identifier: Apache-2.0

// Package seismo computes the source-to-station geometry written alongside a
// network magnitude: nearest-station distance, azimuthal gap, and the
// two-decimal magnitude rounding the catalog expects.
package seismo

import (
	"math"
	"sort"
)

// Mean Earth radius in kilometers.
const earthRadiusKM = 6371.0

// Coordinate is a geographic point in degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance between two points in
// kilometers, via the haversine inverse solution.
func Distance(from, to Coordinate) float64 {
	lat1 := radians(from.Latitude)
	lat2 := radians(to.Latitude)
	dLat := radians(to.Latitude - from.Latitude)
	dLon := radians(to.Longitude - from.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Azimuth returns the initial bearing from one point toward another in
// degrees in [0,360), measured clockwise from north.
func Azimuth(from, to Coordinate) float64 {
	lat1 := radians(from.Latitude)
	lat2 := radians(to.Latitude)
	dLon := radians(to.Longitude - from.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := degrees(math.Atan2(y, x))
	return math.Mod(bearing+360, 360)
}

// AzimuthalGap returns the largest angular span between consecutive
// azimuths sorted on the circle, wrap-around included. Fewer than two
// azimuths leave the whole circle open, a gap of 360.
func AzimuthalGap(azimuths []float64) float64 {
	if len(azimuths) < 2 {
		return 360
	}

	sorted := make([]float64, len(azimuths))
	copy(sorted, azimuths)
	sort.Float64s(sorted)
	// Close the circle by revisiting the smallest azimuth one turn later.
	sorted = append(sorted, sorted[0]+360)

	gap := 0.0
	for i := 1; i < len(sorted); i++ {
		if span := sorted[i] - sorted[i-1]; span > gap {
			gap = span
		}
	}
	return gap
}

// NearestDistance returns the distance in kilometers from the hypocenter to
// the closest of the given stations, and false when there are none.
func NearestDistance(hypocenter Coordinate, stations []Coordinate) (float64, bool) {
	if len(stations) == 0 {
		return 0, false
	}

	nearest := math.Inf(1)
	for _, station := range stations {
		if d := Distance(hypocenter, station); d < nearest {
			nearest = d
		}
	}
	return nearest, true
}

// RoundMagnitude resolves a magnitude to two decimal places, half away
// from zero, before it is written to the catalog. An intermediate round at
// six decimals sheds binary representation noise so a decimal midpoint like
// 4.235 rounds up rather than sitting a few ulps below it.
func RoundMagnitude(value float64) float64 {
	return math.Round(math.Round(value*1e8)/1e6) / 100
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
