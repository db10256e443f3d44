package executor

import (
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a step within a run.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusSkipped
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Record is the per-step execution bookkeeping maintained by the executor.
// Only the executor mutates it; after Run returns it is safe to read from
// any goroutine.
type Record struct {
	StepID string

	status atomic.Int32

	StartedAt  time.Time
	FinishedAt time.Time

	// Produced lists the pool keys of the artifacts this step contributed.
	Produced []string

	// LogPath and ErrPath are set whenever the step was invoked, whatever
	// the outcome, to support postmortem diagnosis.
	LogPath string
	ErrPath string

	// Created is set for ensure steps: true when the resource was actually
	// provisioned, false when it already existed.
	Created *bool

	// Err holds the failure or skip cause for non-succeeded terminal states.
	Err error
}

// Status returns the record's current status.
func (r *Record) Status() Status {
	return Status(r.status.Load())
}

// transition atomically moves the record from one status to another and
// reports whether the swap happened.
func (r *Record) transition(from, to Status) bool {
	return r.status.CompareAndSwap(int32(from), int32(to))
}

func (r *Record) setStatus(s Status) {
	r.status.Store(int32(s))
}
