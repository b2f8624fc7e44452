package device

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

type fakePort struct {
	io.Reader
	written bytes.Buffer
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }

func TestReadLines(t *testing.T) {
	out := make(chan string, 8)
	err := ReadLines(context.Background(), strings.NewReader("W01\r\n\r\nV01 812\r\nV01 815"), out)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	var got []string
	for l := range out {
		got = append(got, l)
	}
	want := []string{"W01", "V01 812", "V01 815"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadLines_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan string) // unbuffered, nobody reads
	if err := ReadLines(ctx, strings.NewReader("V01 1\r\n"), out); err == nil {
		t.Fatalf("expected context error")
	}
	if _, ok := <-out; ok {
		t.Fatalf("out not closed")
	}
}

func TestReadPV(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("*P01100000\r\nV01 1234\r\n")}
	pv, err := ReadPV(context.Background(), port, time.Second)
	if err != nil {
		t.Fatalf("ReadPV: %v", err)
	}
	if pv != 1234 {
		t.Fatalf("pv = %d, want 1234", pv)
	}
	if port.written.String() != PollCommand {
		t.Fatalf("wrote %q, want %q", port.written.String(), PollCommand)
	}
}

func TestReadPV_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	port := &fakePort{Reader: r}
	if _, err := ReadPV(context.Background(), port, 20*time.Millisecond); err == nil {
		t.Fatalf("expected timeout")
	}
}

func TestReadPV_LinkClosed(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("W01\r\n")}
	if _, err := ReadPV(context.Background(), port, time.Second); err == nil {
		t.Fatalf("expected error when the link closes without a PV")
	}
}
