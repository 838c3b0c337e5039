// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEventTableQuotesIdentifiers(t *testing.T) {
	if got := eventTable("production"); got != `"production"."event"` {
		t.Fatalf("eventTable(production) = %q", got)
	}
	// A hostile schema name must not break out of the identifier.
	if got := eventTable(`pro"duction`); strings.Contains(got, `pro"duction"`) && !strings.Contains(got, `""`) {
		t.Fatalf("eventTable did not escape embedded quote: %q", got)
	}
}

func TestLightPayloadFieldOrderIsStable(t *testing.T) {
	mag := 4.23
	magType := "mw_coda"
	status := "C"
	payload, err := json.Marshal(lightEvent{
		EventIdentifier:  "60012345",
		CCTMagnitude:     &mag,
		CCTMagnitudeType: &magType,
		ReviewStatus:     &status,
		UpdateDate:       1700000000.5,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The cache fingerprint hashes these bytes, so the field order is part
	// of the contract.
	want := `{"eventIdentifier":"60012345","cctMagnitude":4.23,` +
		`"cctMagnitudeType":"mw_coda","authoritativeMagnitude":null,` +
		`"authoritativeMagnitudeType":null,"reviewStatus":"C",` +
		`"creationMode":null,"updateDate":1700000000.5}`
	if string(payload) != want {
		t.Fatalf("light payload = %s\nwant %s", payload, want)
	}
}
