package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"kiln_control/internal/models"
)

// DefaultSocketPath is where the daemon listens for control messages.
const DefaultSocketPath = "/run/kiln/control.sock"

// recvBufSize is larger than MessageSize so oversized datagrams show up as a size mismatch.
const recvBufSize = 64

// Intake is the daemon end of the control queue. Any number of processes may
// send; only the control loop receives.
type Intake struct {
	conn *net.UnixConn
	raw  syscall.RawConn
	path string
	buf  [recvBufSize]byte
}

// Listen creates the intake socket at path, replacing a stale one.
// The socket is world-writable: the control surface has no authentication.
func Listen(path string) (*Intake, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %q: %w", path, err)
	}
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("chmod %q: %w", path, err)
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("raw conn for %q: %w", path, err)
	}
	return &Intake{conn: conn, raw: raw, path: path}, nil
}

// TryReceive returns the next queued message without blocking. ok is false
// when the queue is empty. A malformed delivery returns an error; the caller
// drops it and keeps draining.
func (in *Intake) TryReceive() (msg models.ControlMessage, ok bool, err error) {
	var (
		n       int
		recvErr error
	)
	ctrlErr := in.raw.Read(func(fd uintptr) bool {
		n, _, recvErr = unix.Recvfrom(int(fd), in.buf[:], unix.MSG_DONTWAIT)
		return true
	})
	if ctrlErr != nil {
		return models.ControlMessage{}, false, fmt.Errorf("intake: %w", ctrlErr)
	}
	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EWOULDBLOCK) {
			return models.ControlMessage{}, false, nil
		}
		return models.ControlMessage{}, false, fmt.Errorf("intake recv: %w", recvErr)
	}
	msg, err = DecodeMessage(in.buf[:n])
	if err != nil {
		return msg, true, err
	}
	return msg, true, nil
}

// Close stops listening and removes the socket file.
func (in *Intake) Close() error {
	err := in.conn.Close()
	if rmErr := os.Remove(in.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// Sender is the client end used by launchers and the web API.
type Sender struct {
	conn *net.UnixConn
}

// Dial connects to the daemon's intake socket.
func Dial(path string) (*Sender, error) {
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("dial %q (is kilnd running?): %w", path, err)
	}
	return &Sender{conn: conn}, nil
}

// Send delivers one message. Delivery is not acknowledged.
func (s *Sender) Send(m models.ControlMessage) error {
	if _, err := s.conn.Write(EncodeMessage(m)); err != nil {
		return fmt.Errorf("send %s: %w", m.Kind, err)
	}
	return nil
}

// Close releases the client socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
