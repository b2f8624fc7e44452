package service

import (
	"context"
	"errors"
	"time"

	"kiln_control/internal/device"
	"kiln_control/internal/logger"
	"kiln_control/internal/models"
)

const (
	// DefaultTick is the control loop period.
	DefaultTick = time.Second
	// DefaultFlushTimeout bounds how long shutdown waits for the safing command to go out.
	DefaultFlushTimeout = 2 * time.Second
)

// ErrLinkClosed is returned by Run when the serial reader stops delivering lines.
var ErrLinkClosed = errors.New("controller link closed")

var errLoopStopped = errors.New("control loop stopped")

// Intake yields queued control messages without blocking.
type Intake interface {
	TryReceive() (models.ControlMessage, bool, error)
}

// StatusPublisher stores the live status where other processes can read it.
type StatusPublisher interface {
	Publish(st models.LiveStatus)
}

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

// Loop is the daemon's single scheduler. Engine, channel and recorder are
// only ever touched from Run's goroutine; other goroutines reach them through Submit.
type Loop struct {
	engine  *Engine
	channel *device.Channel
	rec     Recorder
	intake  Intake
	status  StatusPublisher
	lines   <-chan string
	log     *logger.Logger
	obs     Observer

	tick         time.Duration
	flushTimeout time.Duration

	tasks chan Task
	done  chan struct{}
	ready []Task
	quit  bool
}

// LoopConfig holds the loop's collaborators. Lines carries controller
// response lines; device.ReadLines produces them.
type LoopConfig struct {
	Engine       *Engine
	Channel      *device.Channel
	Recorder     Recorder
	Intake       Intake
	Status       StatusPublisher
	Lines        <-chan string
	Log          *logger.Logger
	Observer     Observer
	Tick         time.Duration
	FlushTimeout time.Duration
}

func NewLoop(cfg LoopConfig) *Loop {
	l := &Loop{
		engine:       cfg.Engine,
		channel:      cfg.Channel,
		rec:          cfg.Recorder,
		intake:       cfg.Intake,
		status:       cfg.Status,
		lines:        cfg.Lines,
		log:          cfg.Log,
		obs:          cfg.Observer,
		tick:         cfg.Tick,
		flushTimeout: cfg.FlushTimeout,
		tasks:        make(chan Task, 16),
		done:         make(chan struct{}),
	}
	if l.obs == nil {
		l.obs = nopObserver{}
	}
	if l.tick <= 0 {
		l.tick = DefaultTick
	}
	if l.flushTimeout <= 0 {
		l.flushTimeout = DefaultFlushTimeout
	}
	return l
}

// Submit schedules t on the loop. It fails once the loop has stopped.
func (l *Loop) Submit(ctx context.Context, t Task) error {
	select {
	case <-l.done:
		return errLoopStopped
	default:
	}
	select {
	case l.tasks <- t:
		return nil
	case <-l.done:
		return errLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the controller until QUIT arrives, ctx is cancelled or the serial
// link closes. Before returning it cancels any firing and gives the safing
// command a bounded chance to reach the device.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	l.engine.Cancel(ctx)
	l.publish()
	l.log.Infow("control_loop_started", "tick", l.tick)

	var runErr error
	for !l.quit {
		select {
		case <-ctx.Done():
			l.quit = true
		case <-ticker.C:
			l.onTick()
		case line, ok := <-l.lines:
			if !ok {
				l.lines = nil
				runErr = ErrLinkClosed
				l.quit = true
				continue
			}
			l.onLine(ctx, line)
		case t := <-l.tasks:
			l.ready = append(l.ready, t)
		}
		l.runReady(ctx)
		l.publish()
	}

	l.shutdown(context.WithoutCancel(ctx))
	l.log.Infow("control_loop_stopped", "err", runErr)
	return runErr
}

// onTick retires a lost command, polls the controller and drains the intake.
// Drained messages only become ready tasks; they run after the tick's own work.
func (l *Loop) onTick() {
	l.channel.OnTick()
	if !l.channel.Has(device.PollCommand) {
		l.channel.Enqueue(device.PollCommand)
	}

	for {
		msg, ok, err := l.intake.TryReceive()
		if !ok {
			if err != nil {
				l.log.Errorw("intake_receive_failed", "err", err)
			}
			return
		}
		if err != nil {
			l.obs.MessageDropped()
			l.log.Warnw("control_message_dropped", "err", err)
			continue
		}
		l.obs.MessageReceived(msg.Kind)
		l.log.Infow("control_message", "cmd", msg.Kind, "p1", msg.Param1, "p2", msg.Param2)
		l.ready = append(l.ready, l.taskFor(msg))
	}
}

// onLine handles one controller response. Every line acknowledges the
// outstanding command; only PV responses drive the engine.
func (l *Loop) onLine(ctx context.Context, line string) {
	defer l.channel.OnResponse()

	pv, err := device.ParsePV(line)
	if err != nil {
		if !device.IsNotPV(err) {
			l.log.Warnw("bad_pv_response", "line", line, "err", err)
		}
		return
	}
	l.engine.Evaluate(ctx, pv)
	l.rec.RecordSample(ctx, l.engine.Status())
}

func (l *Loop) taskFor(msg models.ControlMessage) Task {
	switch msg.Kind {
	case models.MessageQuit:
		return func(context.Context) { l.quit = true }
	case models.MessageCancel:
		return l.engine.Cancel
	case models.MessageSet:
		return func(ctx context.Context) { l.engine.Set(ctx, int(msg.Param1)) }
	case models.MessageStart:
		return func(ctx context.Context) {
			if err := l.engine.Start(ctx, int(msg.Param1), int(msg.Param2)); err != nil {
				l.log.Errorw("start_refused", "program_id", msg.Param1, "step", msg.Param2, "err", err)
			}
		}
	case models.MessagePause:
		return l.engine.Pause
	case models.MessageResume:
		return l.engine.Resume
	default:
		return func(context.Context) {}
	}
}

func (l *Loop) runReady(ctx context.Context) {
	for len(l.ready) > 0 {
		t := l.ready[0]
		l.ready = l.ready[1:]
		t(ctx)
	}
}

func (l *Loop) publish() {
	if l.status != nil {
		l.status.Publish(l.engine.Status())
	}
}

// shutdown safes the device and waits, best effort, for the channel to drain.
func (l *Loop) shutdown(ctx context.Context) {
	l.ready = nil
	l.engine.Cancel(ctx)
	l.publish()

	deadline := time.NewTimer(l.flushTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(max(l.tick/4, time.Millisecond))
	defer ticker.Stop()

	for !l.channel.Idle() {
		select {
		case <-deadline.C:
			l.log.Warnw("shutdown_flush_incomplete", "pending", l.channel.Pending())
			return
		case <-ticker.C:
			l.channel.OnTick()
		case _, ok := <-l.lines:
			if !ok {
				l.lines = nil
				continue
			}
			l.channel.OnResponse()
		}
	}
}

type multiPublisher []StatusPublisher

func (m multiPublisher) Publish(st models.LiveStatus) {
	for _, p := range m {
		p.Publish(st)
	}
}

// PublishTo fans one status out to several publishers.
func PublishTo(ps ...StatusPublisher) StatusPublisher {
	return multiPublisher(ps)
}
