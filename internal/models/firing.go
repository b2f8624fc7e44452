package models

import "time"

// Firing is one end-to-end execution of a program or of an ad-hoc SET.
type Firing struct {
	ID        int        `json:"id"`
	ProgramID *int       `json:"program_id,omitempty"` // nil for SET firings
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// FiringStep is the completion record of one segment of a firing.
type FiringStep struct {
	FiringID  int         `json:"firing_id"`
	StepID    int         `json:"step_id"`
	Type      SegmentType `json:"-"`
	TypeLabel string      `json:"segment_type"`
	PV        int         `json:"pv"`
	Elapsed   int         `json:"elapsed_s"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
}

// LogSample is one row of the temperature log.
type LogSample struct {
	Time           time.Time `json:"time"`
	FiringID       int       `json:"firing_id"`
	StepID         int       `json:"step_id"`
	PV             int       `json:"pv"`
	TotalElapsed   int       `json:"total_elapsed_s"`
	SegmentElapsed int       `json:"segment_elapsed_s"`
}
