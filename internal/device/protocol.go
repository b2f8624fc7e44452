package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Controller command framing. Every command and every response is one CRLF terminated line.
const (
	lineEnd = "\r\n"

	// PollCommand asks the controller for register 01, the process value.
	PollCommand = "*V01" + lineEnd

	// maxSetpoint is the largest value that fits the 5 hex digit setpoint field.
	maxSetpoint = 0xFFFFF
)

var errNotPV = errors.New("not a process value response")

// SetpointCommand encodes a setpoint write. Persistent writes ("W") survive a
// controller reset; volatile puts ("P") do not.
func SetpointCommand(value int, persistent bool) string {
	mode := 'P'
	if persistent {
		mode = 'W'
	}
	if value < 0 {
		value = 0
	}
	if value > maxSetpoint {
		value = maxSetpoint
	}
	return fmt.Sprintf("*%c011%05x%s", mode, value, lineEnd)
}

// ParsePV extracts the process value from a "V01 <temp>" response line.
// Any other line (setpoint echoes, noise) returns errNotPV.
func ParsePV(line string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "V") {
		return 0, errNotPV
	}

	reg := strings.TrimPrefix(fields[0], "V")
	rest := fields[1:]
	if reg == "" && len(rest) > 0 {
		reg, rest = rest[0], rest[1:]
	}
	if n, err := strconv.Atoi(reg); err != nil || n != 1 {
		return 0, errNotPV
	}
	if len(rest) == 0 {
		return 0, fmt.Errorf("pv response %q: missing value", line)
	}
	pv, err := strconv.Atoi(rest[0])
	if err != nil {
		return 0, fmt.Errorf("pv response %q: %w", line, err)
	}
	return pv, nil
}

// IsNotPV reports whether err only means the line was not a PV response.
func IsNotPV(err error) bool {
	return errors.Is(err, errNotPV)
}
