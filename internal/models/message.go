package models

import "fmt"

// MessageKind identifies a control message.
type MessageKind int32

const (
	MessageQuit   MessageKind = 1 // shut down and exit
	MessageCancel MessageKind = 2 // stop the current program
	MessageSet    MessageKind = 3 // AFAP to Param1, pause, then AFAP to 0
	MessageStart  MessageKind = 4 // start program Param1 at step Param2
	MessagePause  MessageKind = 5 // insert a pause at the current point
	MessageResume MessageKind = 6 // end the current pause
)

func (k MessageKind) String() string {
	switch k {
	case MessageQuit:
		return "QUIT"
	case MessageCancel:
		return "CANCEL"
	case MessageSet:
		return "SET"
	case MessageStart:
		return "START"
	case MessagePause:
		return "PAUSE"
	case MessageResume:
		return "RESUME"
	default:
		return fmt.Sprintf("MessageKind(%d)", int32(k))
	}
}

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	return k >= MessageQuit && k <= MessageResume
}

// ControlMessage is the fixed-shape command sent to the daemon.
type ControlMessage struct {
	Kind   MessageKind `json:"cmd"`
	Param1 int32       `json:"p1"`
	Param2 int32       `json:"p2"`
}
