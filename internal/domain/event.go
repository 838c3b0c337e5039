// SPDX-License-Identifier: Apache-2.0

package domain

// ReviewStatus is the single-letter review state carried on a catalog event
// row: "C" candidate (automatic), "A" accepted, "R" rejected.
type ReviewStatus string

const (
	ReviewCandidate ReviewStatus = "C"
	ReviewAccepted  ReviewStatus = "A"
	ReviewRejected  ReviewStatus = "R"
)

// EventRecord is the in-memory form of one catalog event row. Light holds
// the list-view subset, Full the complete detail document. Both are derived
// from exactly one row at read time and are only ever replaced together.
type EventRecord struct {
	Identifier string
	Light      []byte
	Full       []byte
	// UpdatedAt is the server-side update watermark, epoch seconds.
	UpdatedAt float64
}
