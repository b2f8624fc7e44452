package device

import (
	"io"
	"strings"
	"time"

	"kiln_control/internal/logger"
)

// DefaultResendAfter is how long a command may stay unanswered before it is treated as lost.
const DefaultResendAfter = 2 * time.Second

// Observer receives channel events; the daemon feeds them to prometheus.
type Observer interface {
	CommandSent(cmd string)
	CommandLost(cmd string)
}

type nopObserver struct{}

func (nopObserver) CommandSent(string) {}
func (nopObserver) CommandLost(string) {}

// Channel serializes controller commands: at most one is outstanding, the
// next one goes out when a response line arrives or the outstanding one times out.
// It is not safe for concurrent use; the control loop owns it.
type Channel struct {
	w           io.Writer
	log         *logger.Logger
	obs         Observer
	now         func() time.Time
	resendAfter time.Duration

	queue       []string
	outstanding bool
	current     string
	sentAt      time.Time
}

// ChannelOption customizes a Channel.
type ChannelOption func(*Channel)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ChannelOption {
	return func(c *Channel) { c.now = now }
}

// WithResendAfter overrides DefaultResendAfter.
func WithResendAfter(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.resendAfter = d
		}
	}
}

// WithObserver attaches an event observer.
func WithObserver(o Observer) ChannelOption {
	return func(c *Channel) {
		if o != nil {
			c.obs = o
		}
	}
}

func NewChannel(w io.Writer, log *logger.Logger, opts ...ChannelOption) *Channel {
	c := &Channel{
		w:           w,
		log:         log,
		obs:         nopObserver{},
		now:         time.Now,
		resendAfter: DefaultResendAfter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue appends cmd and transmits it right away if nothing is outstanding.
func (c *Channel) Enqueue(cmd string) {
	c.queue = append(c.queue, cmd)
	if !c.outstanding {
		c.transmitNext()
	}
}

// OnResponse marks the outstanding command as answered and sends the next one.
func (c *Channel) OnResponse() {
	c.outstanding = false
	c.current = ""
	c.transmitNext()
}

// OnTick drops an outstanding command that has waited longer than the resend
// threshold and transmits the next queued one regardless.
func (c *Channel) OnTick() {
	if !c.outstanding || c.now().Sub(c.sentAt) <= c.resendAfter {
		return
	}
	if c.log != nil {
		c.log.Warnw("controller_command_lost", "cmd", strings.TrimSpace(c.current), "waited", c.now().Sub(c.sentAt))
	}
	c.obs.CommandLost(c.current)
	c.outstanding = false
	c.current = ""
	c.transmitNext()
}

// Has reports whether cmd is outstanding or queued.
func (c *Channel) Has(cmd string) bool {
	if c.outstanding && c.current == cmd {
		return true
	}
	for _, q := range c.queue {
		if q == cmd {
			return true
		}
	}
	return false
}

// Idle reports whether nothing is outstanding or queued.
func (c *Channel) Idle() bool {
	return !c.outstanding && len(c.queue) == 0
}

// Pending returns the number of queued, not yet transmitted commands.
func (c *Channel) Pending() int {
	return len(c.queue)
}

func (c *Channel) transmitNext() {
	if len(c.queue) == 0 {
		return
	}
	cmd := c.queue[0]
	c.queue = c.queue[1:]

	c.outstanding = true
	c.current = cmd
	c.sentAt = c.now()
	if _, err := io.WriteString(c.w, cmd); err != nil && c.log != nil {
		// the resend timer recovers from a failed write like from a lost response
		c.log.Errorw("controller_write_failed", "cmd", strings.TrimSpace(cmd), "err", err)
	}
	c.obs.CommandSent(cmd)
}
