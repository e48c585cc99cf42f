package models

import "fmt"

// SchemaMismatchError means a destination table has none of the column names
// the engine can work with. It always aborts a run before any write.
type SchemaMismatchError struct {
	Table      string
	Candidates []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s has none of the expected columns %v", e.Table, e.Candidates)
}

// FetchError wraps a failure talking to the POS reporting API. Stage is one
// of "auth", "report" or "logout".
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("pos %s request failed: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
