package models

import (
	"fmt"
	"strings"
	"time"
)

// SegmentType is the kind of the program segment being executed.
// Values are stable: they are published in the shared status block.
type SegmentType int32

const (
	SegmentAFAP  SegmentType = 1 // drive to the target as fast as possible
	SegmentHold  SegmentType = 2 // keep the current SV for Duration seconds
	SegmentPause SegmentType = 3 // keep the current SV until RESUME
	SegmentRamp  SegmentType = 4 // move the SV linearly to the target over Duration seconds
)

// String returns the label stored in the Firings table.
func (t SegmentType) String() string {
	switch t {
	case SegmentAFAP:
		return "AFAP"
	case SegmentHold:
		return "Hold"
	case SegmentPause:
		return "Pause"
	case SegmentRamp:
		return "Ramp"
	default:
		return fmt.Sprintf("SegmentType(%d)", int32(t))
	}
}

// Valid reports whether t is one of the four known segment types.
func (t SegmentType) Valid() bool {
	switch t {
	case SegmentAFAP, SegmentHold, SegmentPause, SegmentRamp:
		return true
	default:
		return false
	}
}

// ParseInstruction maps a stored program instruction ("afap", "hold", "pause", "ramp")
// to its segment type. Unknown instructions are an error, never a silent default.
func ParseInstruction(s string) (SegmentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "afap":
		return SegmentAFAP, nil
	case "hold":
		return SegmentHold, nil
	case "pause":
		return SegmentPause, nil
	case "ramp":
		return SegmentRamp, nil
	default:
		return 0, fmt.Errorf("unknown instruction %q", s)
	}
}

// Instruction returns the lowercase program instruction for t.
func (t SegmentType) Instruction() string {
	return strings.ToLower(t.String())
}

// Segment is one unit of program execution.
type Segment struct {
	Type      SegmentType
	TargetSV  int
	Duration  int // seconds; hold time for Hold, ramp time for Ramp
	StartTime time.Time
	StartTemp int
}

// NewSegment returns the idle segment: Pause at 0.
func NewSegment() Segment {
	return Segment{Type: SegmentPause}
}
