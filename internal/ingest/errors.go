package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrRunActive   = errors.New("ingest: a run is already active")
	ErrNoLocations = errors.New("no spreadsheet locations found")
	ErrCancelled   = errors.New("ingest: run cancelled")
)

// DiscoveryError means the run never got a list of documents to fetch.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return "discovery: " + e.Err.Error() }

func (e *DiscoveryError) Unwrap() error { return e.Err }

// PersistenceError means the merged set could not be stored. Stage is
// one of "load", "upsert <store>" or "replace". The consolidated file is
// left as it was.
type PersistenceError struct {
	Stage string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence (%s): %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
