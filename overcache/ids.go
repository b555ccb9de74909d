// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-minted ids. Servers never assign ids with this prefix.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh temporary id. UUIDv7 keeps ids time-ordered and unique
// across concurrent creates.
func NewTempID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does
		id = uuid.New()
	}
	return TempIDPrefix + id.String()
}

// IsTempID reports whether id was minted by NewTempID
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
