// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/seisreview/cct-service/internal/seismo"
)

// The full payload carries hypocenters keyed by event identifier and the
// spectral measurements contributed by each station's waveforms.
type fullPayload struct {
	MeasuredMwDetails   map[string]hypocenterDetails    `json:"measuredMwDetails"`
	SpectraMeasurements map[string][]spectraMeasurement `json:"spectraMeasurements"`
}

type hypocenterDetails struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type spectraMeasurement struct {
	Waveform *waveform `json:"waveform"`
}

type waveform struct {
	Stream *stream `json:"stream"`
}

type stream struct {
	Station *stationCoordinates `json:"station"`
}

type stationCoordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// eventGeometry unpacks the hypocenter and the distinct contributing station
// coordinates for one event from its full payload. The observation count is
// the number of spectral measurements, which exceeds the station count when
// a station contributes several bands.
func eventGeometry(full []byte, eventIdentifier string) (seismo.Coordinate, []seismo.Coordinate, int, error) {
	var payload fullPayload
	if err := json.Unmarshal(full, &payload); err != nil {
		return seismo.Coordinate{}, nil, 0, fmt.Errorf("unpack full payload: %w", err)
	}

	details, ok := payload.MeasuredMwDetails[eventIdentifier]
	if !ok || details.Latitude == nil || details.Longitude == nil {
		return seismo.Coordinate{}, nil, 0,
			fmt.Errorf("no hypocenter for event %s", eventIdentifier)
	}
	hypocenter := seismo.Coordinate{
		Latitude:  *details.Latitude,
		Longitude: *details.Longitude,
	}

	var (
		stations     []seismo.Coordinate
		seen         = make(map[seismo.Coordinate]struct{})
		observations int
	)
	for _, measurement := range payload.SpectraMeasurements[eventIdentifier] {
		if measurement.Waveform == nil || measurement.Waveform.Stream == nil {
			continue
		}
		station := measurement.Waveform.Stream.Station
		if station == nil || station.Latitude == nil || station.Longitude == nil {
			continue
		}
		observations++
		coordinate := seismo.Coordinate{
			Latitude:  *station.Latitude,
			Longitude: *station.Longitude,
		}
		if _, dup := seen[coordinate]; dup {
			continue
		}
		seen[coordinate] = struct{}{}
		stations = append(stations, coordinate)
	}

	if len(stations) == 0 {
		return seismo.Coordinate{}, nil, 0,
			fmt.Errorf("no station coordinates for event %s", eventIdentifier)
	}
	return hypocenter, stations, observations, nil
}
