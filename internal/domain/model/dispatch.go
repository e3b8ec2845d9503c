package model

import "time"

// RunKind distinguishes the two kinds of recorded maintenance runs.
type RunKind string

const (
	RunKindRefresh  RunKind = "refresh"
	RunKindDispatch RunKind = "dispatch"
)

// RefreshReport summarizes one credential refresh pass. Refreshed+Deleted
// always equals the population size at the start of the pass.
type RefreshReport struct {
	Refreshed int
	Deleted   int
}

// DispatchReport summarizes one bulk invitation run. Success and Failed are
// the only per-run detail surfaced to callers; individual failures are logged
// and absorbed.
type DispatchReport struct {
	Success int
	Failed  int
}

// Run is a persisted record of a completed refresh pass or dispatch run,
// kept for operator audit.
type Run struct {
	ID         string
	Kind       RunKind
	GroupID    string
	Total      int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}
