package store

import "time"

const (
	SyncRunRunning   = "running"
	SyncRunSucceeded = "succeeded"
	SyncRunFailed    = "failed"
)

type SyncRun struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	HTTPStatus int        `json:"httpStatus,omitempty"`
	Bytes      int        `json:"bytes"`
	Lines      int        `json:"lines"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
}

// SyncRunResult is what a finished sync records about itself.
type SyncRunResult struct {
	Status     string
	FinishedAt time.Time
	HTTPStatus int
	Bytes      int
	Lines      int
	Rows       int
	Error      string
}
