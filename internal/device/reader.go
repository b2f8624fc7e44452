package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ReadLines scans CRLF terminated response lines from r and delivers them on out
// until ctx is done or r fails. It closes out on return.
func ReadLines(ctx context.Context, r io.Reader, out chan<- string) error {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read controller: %w", err)
	}
	return nil
}

// ReadPV sends one poll and waits for the PV response. It is for one-shot tools
// that talk to the controller while the daemon is stopped.
func ReadPV(ctx context.Context, rw io.ReadWriter, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := io.WriteString(rw, PollCommand); err != nil {
		return 0, fmt.Errorf("write poll: %w", err)
	}

	lines := make(chan string, 4)
	go func() { _ = ReadLines(ctx, rw, lines) }()

	for {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("wait for pv: %w", ctx.Err())
		case line, ok := <-lines:
			if !ok {
				return 0, errors.New("controller closed the link")
			}
			pv, err := ParsePV(line)
			if IsNotPV(err) {
				continue
			}
			return pv, err
		}
	}
}
