package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"kiln_control/internal/device"
	"kiln_control/internal/ipc"
	"kiln_control/internal/logger"
	"kiln_control/internal/models"
)

type queuedMessage struct {
	msg models.ControlMessage
	err error
}

type fakeIntake struct {
	mu    sync.Mutex
	queue []queuedMessage
}

func (f *fakeIntake) push(m models.ControlMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, queuedMessage{msg: m})
}

func (f *fakeIntake) pushErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, queuedMessage{err: err})
}

func (f *fakeIntake) TryReceive() (models.ControlMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return models.ControlMessage{}, false, nil
	}
	q := f.queue[0]
	f.queue = f.queue[1:]
	return q.msg, true, q.err
}

type fakePublisher struct {
	last  models.LiveStatus
	count int
}

func (p *fakePublisher) Publish(st models.LiveStatus) {
	p.last = st
	p.count++
}

type loopFixture struct {
	loop   *Loop
	engine *Engine
	rec    *fakeRecorder
	intake *fakeIntake
	pub    *fakePublisher
	wire   *bytes.Buffer
}

func newLoopFixture(t *testing.T, lines <-chan string) *loopFixture {
	t.Helper()
	f := &loopFixture{
		rec:    &fakeRecorder{programs: kilnProgram},
		intake: &fakeIntake{},
		pub:    &fakePublisher{},
		wire:   &bytes.Buffer{},
	}
	log := logger.Nop()
	ch := device.NewChannel(f.wire, log, device.WithResendAfter(10*time.Millisecond))
	f.engine = NewEngine(ch, f.rec, log, DefaultPVMargin)
	f.loop = NewLoop(LoopConfig{
		Engine:       f.engine,
		Channel:      ch,
		Recorder:     f.rec,
		Intake:       f.intake,
		Status:       f.pub,
		Lines:        lines,
		Log:          log,
		Tick:         5 * time.Millisecond,
		FlushTimeout: time.Second,
	})
	return f
}

func (f *loopFixture) run(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- f.loop.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("control loop did not stop")
		return nil
	}
}

func wireCommands(buf *bytes.Buffer) []string {
	var out []string
	for _, l := range strings.SplitAfter(buf.String(), "\r\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func indexOf(cmds []string, want string) int {
	for i, c := range cmds {
		if c == want {
			return i
		}
	}
	return -1
}

func TestLoop_QuitSafesDeviceAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newLoopFixture(t, nil)
	f.intake.push(models.ControlMessage{Kind: models.MessageSet, Param1: 500})
	f.intake.push(models.ControlMessage{Kind: models.MessageQuit})

	if err := waitRun(t, f.run(context.Background())); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	cmds := wireCommands(f.wire)
	poll := indexOf(cmds, device.PollCommand)
	set := indexOf(cmds, device.SetpointCommand(500, false))
	if poll < 0 || set < 0 || poll > set {
		t.Fatalf("expected the tick's poll before the SET setpoint, got %q", cmds)
	}
	if got, want := cmds[len(cmds)-1], device.SetpointCommand(0, true); got != want {
		t.Fatalf("last command = %q, want %q", got, want)
	}
	assertIdle(t, f.engine)
	if len(f.rec.created) != 1 || len(f.rec.finished) != 1 {
		t.Fatalf("expected the SET firing to be opened and finished, got %v / %v", f.rec.created, f.rec.finished)
	}
	if f.pub.last.FiringID != 0 || f.pub.last.SegmentType != models.SegmentPause {
		t.Fatalf("final published status not idle: %+v", f.pub.last)
	}
}

func TestLoop_ContextCancelStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newLoopFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := f.run(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if err := f.loop.Submit(context.Background(), func(context.Context) {}); err == nil {
		t.Fatalf("Submit after stop should fail")
	}
}

func TestLoop_ResponseDrivesEngineAndSamples(t *testing.T) {
	defer goleak.VerifyNone(t)

	lines := make(chan string)
	f := newLoopFixture(t, lines)
	f.intake.push(models.ControlMessage{Kind: models.MessageStart, Param1: 7})
	errCh := f.run(context.Background())

	// wait until START has run, then report the kiln at temperature
	deadline := time.After(5 * time.Second)
	for {
		done := make(chan bool, 1)
		if err := f.loop.Submit(context.Background(), func(context.Context) {
			done <- f.engine.Current().Type == models.SegmentAFAP
		}); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		if <-done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("START never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	lines <- "W01"
	lines <- "V01 1798"
	close(lines)

	if err := waitRun(t, errCh); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed, got %v", err)
	}
	if len(f.rec.samples) != 1 || f.rec.samples[0].PV != 1798 {
		t.Fatalf("expected one sample at 1798, got %+v", f.rec.samples)
	}
	if len(f.rec.steps) < 2 || f.rec.steps[0].Type != models.SegmentAFAP {
		t.Fatalf("expected AFAP completion then shutdown record, got %+v", f.rec.steps)
	}
}

func TestLoop_MalformedMessagesAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newLoopFixture(t, nil)
	f.intake.pushErr(ipc.ErrBadMessageSize)
	f.intake.push(models.ControlMessage{Kind: models.MessageQuit})

	if err := waitRun(t, f.run(context.Background())); err != nil {
		t.Fatalf("Run error: %v", err)
	}
}

func TestLoop_SubmitRunsOnLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newLoopFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := f.run(ctx)

	applied := make(chan int, 1)
	if err := f.loop.Submit(ctx, func(context.Context) {
		f.engine.SetMargin(12)
		applied <- f.engine.Margin()
	}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if got := <-applied; got != 12 {
		t.Fatalf("margin = %d, want 12", got)
	}

	cancel()
	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("Run error: %v", err)
	}
}
