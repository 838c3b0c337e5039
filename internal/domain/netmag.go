// SPDX-License-Identifier: Apache-2.0

package domain

// Fixed identity of magnitudes produced by this service in the authoritative
// catalog. Writes never touch magnitudes from other algorithms.
const (
	MagnitudeType      = "w"
	MagnitudeAuthority = "UU"
	MagnitudeSubSource = "cct"
	MagnitudeAlgorithm = "LLNLCCT"
)

// ReviewFlag marks whether a magnitude was set by a human reviewer or an
// automated process. Encoded single-letter in the catalog.
type ReviewFlag string

const (
	ReviewFlagAutomatic ReviewFlag = "A"
	ReviewFlagHuman     ReviewFlag = "H"
)

// NetworkMagnitude is the transient write-side value for one netmag row.
// It is constructed per accept/reject request and never persisted in memory;
// its only durable form is catalog rows.
type NetworkMagnitude struct {
	// Identifier is assigned by the catalog sequence on insert, or
	// discovered from a prior lookup on update/delete.
	Identifier       int64
	OriginIdentifier int64
	Value            float64
	Type             string
	Authority        string
	SubSource        string
	Algorithm        string
	ReviewFlag       ReviewFlag

	// Optional derived metrics. Nil means "unknown", written as NULL; never
	// defaulted to zero.
	StationCount     *int
	ObservationCount *int
	Gap              *float64
	Distance         *float64
}

// NewNetworkMagnitude validates the required fields and fills the fixed
// defaults for type, authority, subsource and algorithm.
func NewNetworkMagnitude(value float64, originIdentifier int64) (*NetworkMagnitude, error) {
	if value >= 10 || value < -10 {
		return nil, NewValidationError("magnitude", "must be in range [-10,10)")
	}
	if originIdentifier <= 0 {
		return nil, NewValidationError("origin identifier", "must be positive")
	}
	return &NetworkMagnitude{
		OriginIdentifier: originIdentifier,
		Value:            value,
		Type:             MagnitudeType,
		Authority:        MagnitudeAuthority,
		SubSource:        MagnitudeSubSource,
		Algorithm:        MagnitudeAlgorithm,
		ReviewFlag:       ReviewFlagHuman,
	}, nil
}

func (m *NetworkMagnitude) SetStationCount(n int) error {
	if n < 0 {
		return NewValidationError("station count", "must be non-negative")
	}
	m.StationCount = &n
	return nil
}

func (m *NetworkMagnitude) SetObservationCount(n int) error {
	if n < 0 {
		return NewValidationError("observation count", "must be non-negative")
	}
	m.ObservationCount = &n
	return nil
}

// SetGap accepts [0,360]; a gap of exactly 360 is the fully open circle a
// single contributing station leaves behind.
func (m *NetworkMagnitude) SetGap(gap float64) error {
	if gap < 0 || gap > 360 {
		return NewValidationError("gap", "must be in range [0,360]")
	}
	m.Gap = &gap
	return nil
}

func (m *NetworkMagnitude) SetDistance(distance float64) error {
	if distance < 0 {
		return NewValidationError("distance", "must be non-negative")
	}
	m.Distance = &distance
	return nil
}

// Validate re-checks the invariants a caller could have broken by mutating
// fields directly. Called by the writer before any statement executes.
func (m *NetworkMagnitude) Validate() error {
	if m.Value >= 10 || m.Value < -10 {
		return NewValidationError("magnitude", "must be in range [-10,10)")
	}
	if m.Type == "" {
		return NewValidationError("magnitude type", "must not be empty")
	}
	if m.Authority == "" {
		return NewValidationError("authority", "must not be empty")
	}
	if m.SubSource == "" {
		return NewValidationError("subsource", "must not be empty")
	}
	if m.OriginIdentifier <= 0 {
		return NewValidationError("origin identifier", "must be positive")
	}
	if m.StationCount != nil && *m.StationCount < 0 {
		return NewValidationError("station count", "must be non-negative")
	}
	if m.ObservationCount != nil && *m.ObservationCount < 0 {
		return NewValidationError("observation count", "must be non-negative")
	}
	if m.Gap != nil && (*m.Gap < 0 || *m.Gap > 360) {
		return NewValidationError("gap", "must be in range [0,360]")
	}
	if m.Distance != nil && *m.Distance < 0 {
		return NewValidationError("distance", "must be non-negative")
	}
	if m.ReviewFlag != ReviewFlagHuman && m.ReviewFlag != ReviewFlagAutomatic {
		return NewValidationError("review flag", "must be human or automatic")
	}
	return nil
}
