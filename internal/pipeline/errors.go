package pipeline

import (
	"errors"
	"fmt"
)

// ErrDiscoveryFailed is returned when every category query failed.
var ErrDiscoveryFailed = errors.New("discovery failed for every category")

// Stage names the step of per-article processing that failed
type Stage string

const (
	StageAcquisition Stage = "acquisition"
	StageEnrichment  Stage = "enrichment"
	StageParse       Stage = "parse"
)

// StageError is a per-article failure. It is recorded on the stub and never aborts a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PersistenceError is a storage failure. It aborts the remaining run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
