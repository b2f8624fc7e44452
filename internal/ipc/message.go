// Package ipc implements the daemon's control surface: a datagram intake for
// control messages and a fixed-layout shared status block.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"kiln_control/internal/models"
)

// MessageSize is the wire size of a control message: three little-endian int32.
const MessageSize = 12

var (
	// ErrBadMessageSize marks a truncated or oversized delivery. It is dropped, not retried.
	ErrBadMessageSize = errors.New("control message has wrong size")
	// ErrUnknownMessage marks a well-sized message with an unknown kind.
	ErrUnknownMessage = errors.New("unknown control message kind")
)

// EncodeMessage returns the wire form of m.
func EncodeMessage(m models.ControlMessage) []byte {
	b := make([]byte, MessageSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.Kind))
	binary.LittleEndian.PutUint32(b[4:8], uint32(m.Param1))
	binary.LittleEndian.PutUint32(b[8:12], uint32(m.Param2))
	return b
}

// DecodeMessage parses one datagram.
func DecodeMessage(b []byte) (models.ControlMessage, error) {
	if len(b) != MessageSize {
		return models.ControlMessage{}, fmt.Errorf("%w: got %d bytes", ErrBadMessageSize, len(b))
	}
	m := models.ControlMessage{
		Kind:   models.MessageKind(int32(binary.LittleEndian.Uint32(b[0:4]))),
		Param1: int32(binary.LittleEndian.Uint32(b[4:8])),
		Param2: int32(binary.LittleEndian.Uint32(b[8:12])),
	}
	if !m.Kind.Valid() {
		return m, fmt.Errorf("%w: %d", ErrUnknownMessage, int32(m.Kind))
	}
	return m, nil
}
