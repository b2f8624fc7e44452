package models

// LiveStatus is the state published to the shared status block.
// Only the daemon writes it; readers may observe it one tick stale.
type LiveStatus struct {
	SV             int32       `json:"sv"`
	PV             int32       `json:"pv"`
	SegmentElapsed int32       `json:"segment_elapsed_s"`
	ProgramElapsed int32       `json:"program_elapsed_s"` // excludes the current segment
	SegmentPlanned int32       `json:"segment_planned_s"`
	SegmentType    SegmentType `json:"segment_type"`
	FiringID       int32       `json:"firing_id"`
	StepID         int32       `json:"step_id"`
}

// TotalElapsed is the firing time including the current segment.
func (s LiveStatus) TotalElapsed() int32 {
	return s.ProgramElapsed + s.SegmentElapsed
}

// Firing reports whether a firing is active.
func (s LiveStatus) Firing() bool {
	return s.FiringID != 0
}
