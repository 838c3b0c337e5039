// SPDX-License-Identifier: Apache-2.0

package domain

import "strconv"

// ParseEventIdentifier converts an opaque event identifier to the catalog's
// integer key. Identifiers may carry a two-letter network prefix, e.g.
// uu60012345, which is stripped before conversion.
func ParseEventIdentifier(identifier string) (int64, error) {
	if identifier == "" {
		return 0, NewValidationError("event identifier", "must not be empty")
	}

	value, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil && len(identifier) > 2 {
		value, err = strconv.ParseInt(identifier[2:], 10, 64)
	}
	if err != nil || value < 0 {
		return 0, NewValidationError("event identifier",
			"could not convert "+identifier+" to an integer")
	}
	return value, nil
}
