package service

import (
	"context"
	"errors"
	"fmt"

	"kiln_control/internal/ipc"
	"kiln_control/internal/models"
)

var (
	errUnknownCommand = errors.New("unknown command: must be quit, cancel, set, start, pause or resume")
	errBadSetpoint    = errors.New("set: temperature must be >= 0")
	errBadProgramRef  = errors.New("start: program id must be > 0 and step >= 0")
)

// ControlService forwards control messages to the daemon's intake socket.
// It never touches the device itself.
type ControlService struct {
	socketPath string
}

func NewControlService(socketPath string) *ControlService {
	return &ControlService{socketPath: socketPath}
}

// Send validates m and delivers it. Delivery is not acknowledged; the effect
// shows up in the live status within a tick or two.
func (s *ControlService) Send(ctx context.Context, m models.ControlMessage) error {
	if err := ValidateMessage(m); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sender, err := ipc.Dial(s.socketPath)
	if err != nil {
		return err
	}
	defer sender.Close()

	return sender.Send(m)
}

// ValidateMessage rejects messages the daemon would act on nonsensically.
func ValidateMessage(m models.ControlMessage) error {
	switch m.Kind {
	case models.MessageSet:
		if m.Param1 < 0 {
			return errBadSetpoint
		}
	case models.MessageStart:
		if m.Param1 <= 0 || m.Param2 < 0 {
			return errBadProgramRef
		}
	case models.MessageQuit, models.MessageCancel, models.MessagePause, models.MessageResume:
	default:
		return fmt.Errorf("%w (got %d)", errUnknownCommand, int32(m.Kind))
	}
	return nil
}

// ParseCommand maps a command name to its message kind.
func ParseCommand(name string) (models.MessageKind, error) {
	for k := models.MessageQuit; k <= models.MessageResume; k++ {
		if equalFold(k.String(), name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w (got %q)", errUnknownCommand, name)
}
