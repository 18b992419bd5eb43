package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string used for run and session identifiers.
func NewID() string {
	return ulid.Make().String()
}

// UnitID returns the identifier of the execution unit pairing a test with an
// engine, e.g. "login/successful_login@firefox".
func UnitID(testID, engine string) string {
	return testID + "@" + engine
}
