package models

import "time"

// Instruction is one stored program step.
type Instruction struct {
	Step        int    `json:"step"`
	Kind        string `json:"instruction"` // afap | hold | pause | ramp
	Temperature int    `json:"temperature"`
	Param       int    `json:"param"` // seconds for hold, degrees/hour for ramp
}

// ProgramInfo is the header row of a stored program.
type ProgramInfo struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Deleted      bool       `json:"deleted,omitempty"`
	LastExecTime *time.Time `json:"last_exec_time,omitempty"`
	ExecCount    int        `json:"exec_count"`
}

// Program is a header together with its ordered steps.
type Program struct {
	ProgramInfo
	Steps []Instruction `json:"steps"`
}
