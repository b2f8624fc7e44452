package service

import (
	"time"

	"kiln_control/internal/models"
)

// RangeFilter selects the trailing window of the temperature log.
type RangeFilter struct {
	Seconds int       // window length; the last sample before the window is included
	Now     time.Time // zero means time.Now
}

// Trace is the temperature history of a window plus the instants at which
// firing steps ended inside it.
type Trace struct {
	Samples    []models.LogSample `json:"samples"`
	Boundaries []time.Time        `json:"boundaries"`
}

// FiringDetail is one firing with its completed steps.
type FiringDetail struct {
	models.Firing
	Steps []models.FiringStep `json:"steps"`
}
