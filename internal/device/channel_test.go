package device

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingObserver struct {
	sent, lost int
}

func (o *countingObserver) CommandSent(string) { o.sent++ }
func (o *countingObserver) CommandLost(string) { o.lost++ }

func sentLines(buf *bytes.Buffer) []string {
	out := strings.SplitAfter(buf.String(), "\r\n")
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func TestChannel_OneCommandOutstanding(t *testing.T) {
	var buf bytes.Buffer
	clk := &fakeClock{t: time.Unix(0, 0)}
	ch := NewChannel(&buf, nil, WithClock(clk.Now))

	ch.Enqueue(PollCommand)
	ch.Enqueue(SetpointCommand(500, false))

	if got := sentLines(&buf); len(got) != 1 || got[0] != PollCommand {
		t.Fatalf("expected only the poll on the wire, got %q", got)
	}
	if ch.Pending() != 1 {
		t.Fatalf("expected 1 pending command, got %d", ch.Pending())
	}

	ch.OnResponse()
	if got := sentLines(&buf); len(got) != 2 || got[1] != SetpointCommand(500, false) {
		t.Fatalf("expected setpoint after response, got %q", got)
	}

	ch.OnResponse()
	if !ch.Idle() {
		t.Fatalf("expected idle channel")
	}
}

func TestChannel_ResendAfterTimeout(t *testing.T) {
	var buf bytes.Buffer
	clk := &fakeClock{t: time.Unix(0, 0)}
	obs := &countingObserver{}
	ch := NewChannel(&buf, nil, WithClock(clk.Now), WithObserver(obs))

	ch.Enqueue(PollCommand)
	ch.Enqueue(SetpointCommand(100, false))

	clk.Advance(2 * time.Second)
	ch.OnTick()
	if len(sentLines(&buf)) != 1 {
		t.Fatalf("threshold is exclusive: nothing should be resent at exactly 2s")
	}

	clk.Advance(time.Second)
	ch.OnTick()
	got := sentLines(&buf)
	if len(got) != 2 || got[1] != SetpointCommand(100, false) {
		t.Fatalf("expected next command forced out, got %q", got)
	}
	if obs.lost != 1 || obs.sent != 2 {
		t.Fatalf("observer counts: sent=%d lost=%d", obs.sent, obs.lost)
	}
}

func TestChannel_LostWithEmptyQueueClearsOutstanding(t *testing.T) {
	var buf bytes.Buffer
	clk := &fakeClock{t: time.Unix(0, 0)}
	ch := NewChannel(&buf, nil, WithClock(clk.Now))

	ch.Enqueue(PollCommand)
	clk.Advance(3 * time.Second)
	ch.OnTick()
	if !ch.Idle() {
		t.Fatalf("expected channel idle after losing its only command")
	}

	ch.Enqueue(PollCommand)
	if len(sentLines(&buf)) != 2 {
		t.Fatalf("expected the next enqueue to transmit immediately")
	}
}

func TestChannel_Has(t *testing.T) {
	var buf bytes.Buffer
	ch := NewChannel(&buf, nil)

	if ch.Has(PollCommand) {
		t.Fatalf("empty channel should not have a poll")
	}
	ch.Enqueue(PollCommand)
	if !ch.Has(PollCommand) {
		t.Fatalf("outstanding poll not reported")
	}
	ch.Enqueue(SetpointCommand(1, false))
	ch.OnResponse()
	if ch.Has(PollCommand) {
		t.Fatalf("answered poll still reported")
	}
	if !ch.Has(SetpointCommand(1, false)) {
		t.Fatalf("outstanding setpoint not reported")
	}
}
