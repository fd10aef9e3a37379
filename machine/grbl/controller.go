package grbl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mastercactapus/motorctl/coord"
	"github.com/mastercactapus/motorctl/gcode"
	"github.com/mastercactapus/motorctl/machine/serial"
	"github.com/mastercactapus/motorctl/position"
	"github.com/sirupsen/logrus"
)

// idleConfirmations is how many idle reports past the first are required
// before a motion is considered complete. Grbl can briefly report Idle while
// decelerating between planner blocks.
const idleConfirmations = 10

// State is the lifecycle state of a Controller.
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateReady
	StateBusy
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configure a Controller.
type Options struct {
	Name string
	ID   int

	// FeedRate is the default for Move.
	FeedRate float64

	// SettleDelay is how long to wait after waking the controller up.
	SettleDelay time.Duration

	// MotionStartDelay is waited after sending a motion command, before polling.
	MotionStartDelay time.Duration

	// PollInterval is waited between idle samples.
	PollInterval time.Duration

	// StatusRetries bounds how many malformed reports Status will skip.
	StatusRetries int

	// CommandTimeout, if set, bounds every Send.
	CommandTimeout time.Duration

	// Store restores the work offset on connect and records it on close.
	// Nil disables both.
	Store position.Store

	// DisableAutoSave skips recording the position on close.
	DisableAutoSave bool

	// OnStatus is called with every decoded status report.
	OnStatus func(Status)

	Logger logrus.FieldLogger
}

// DefaultOptions returns the settings used for a real machine.
func DefaultOptions() Options {
	return Options{
		Name:             "Motor",
		FeedRate:         DefaultFeedRate,
		SettleDelay:      2 * time.Second,
		MotionStartDelay: time.Second,
		StatusRetries:    25,
	}
}

// Controller is a session with one Grbl controller. It owns the serial port
// for its lifetime; commands run strictly in the order they are sent.
type Controller struct {
	mx sync.Mutex

	conn  *conn
	opts  Options
	build Builder
	log   logrus.FieldLogger

	state State
	err   error

	statMx sync.Mutex
	last   Status
}

// New creates a Controller for an already open port. Call Connect before use.
func New(port serial.Port, opts Options) *Controller {
	if opts.StatusRetries <= 0 {
		opts.StatusRetries = DefaultOptions().StatusRetries
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Controller{
		conn:  newConn(port),
		opts:  opts,
		build: Builder{FeedRate: opts.FeedRate},
		log:   opts.Logger.WithFields(logrus.Fields{"motor": opts.Name, "motor_id": opts.ID}),
	}
}

// Dial opens the serial port described by cfg and connects to it.
func Dial(ctx context.Context, cfg *serial.Config, opts Options) (*Controller, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	c := New(port, opts)
	err = c.Connect(ctx)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}

// LastStatus returns the most recently decoded status report.
func (c *Controller) LastStatus() Status {
	c.statMx.Lock()
	defer c.statMx.Unlock()
	return c.last
}

func (c *Controller) observe(stat Status) {
	c.statMx.Lock()
	c.last = stat
	c.statMx.Unlock()
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(stat)
	}
}

// fail records transport errors so later calls refuse to use the session.
func (c *Controller) fail(err error) error {
	if errors.Is(err, ErrTransport) && c.err == nil {
		c.err = err
		c.log.WithError(err).Error("session unusable")
	}
	return err
}

func (c *Controller) usable() error {
	if c.err != nil {
		return c.err
	}
	switch c.state {
	case StateHandshaking, StateReady:
		return nil
	}
	return fmt.Errorf("%w (%s)", ErrNotConnected, c.state)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect wakes the controller up and restores the last recorded work position.
// If it fails the session is left disconnected; Close still releases the port.
func (c *Controller) Connect(ctx context.Context) (err error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateDisconnected {
		return fmt.Errorf("connect: session is %s", c.state)
	}
	c.state = StateHandshaking
	defer func() {
		if err != nil {
			c.state = StateDisconnected
		}
	}()

	err = c.conn.write(wakeUp)
	if err != nil {
		return c.fail(err)
	}
	err = sleep(ctx, c.opts.SettleDelay)
	if err != nil {
		return err
	}
	err = c.conn.resetInput()
	if err != nil {
		return c.fail(err)
	}

	err = c.restore(ctx)
	if err != nil {
		return err
	}

	c.state = StateReady
	c.log.Info("connected")
	return nil
}

// restore applies the last recorded work position. A missing or unreadable
// record is not an error; the operator can re-home.
func (c *Controller) restore(ctx context.Context) error {
	if c.opts.Store == nil {
		return nil
	}
	rec, ok, err := c.opts.Store.Latest()
	if err != nil {
		c.log.WithError(err).Warn("could not restore work position")
		return nil
	}
	if !ok {
		c.log.Debug("no recorded work position")
		return nil
	}

	c.log.WithFields(logrus.Fields{
		"position": rec.WorkPosition,
		"recorded": rec.Timestamp.Format(position.TimestampFormat),
	}).Info("restoring work position")
	_, err = c.send(ctx, c.build.SetWorkOffset(rec.WorkPosition))
	return err
}

// Send writes cmd and, unless it is a sentinel, blocks until the controller
// has settled in the Idle state. It returns the next response line.
func (c *Controller) Send(ctx context.Context, cmd Command) (string, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.send(ctx, cmd)
}

func (c *Controller) send(ctx context.Context, cmd Command) (string, error) {
	err := c.usable()
	if err != nil {
		return "", err
	}
	if c.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CommandTimeout)
		defer cancel()
	}

	if cmd.IsSentinel() {
		// sentinels skip the idle wait, which would otherwise drop stale lines
		err = c.conn.resetInput()
		if err != nil {
			return "", c.fail(err)
		}
	}
	err = c.conn.writeLine(string(cmd))
	if err != nil {
		return "", c.fail(err)
	}
	c.log.WithField("command", cmd).Debug("sent command")

	prev := c.state
	c.state = StateBusy
	defer func() { c.state = prev }()

	if !cmd.IsSentinel() {
		err = c.waitIdle(ctx)
		if err != nil {
			return "", c.fail(fmt.Errorf("%s: %w", cmd, err))
		}
	}

	resp, err := c.conn.readLine(ctx)
	if err != nil {
		return "", c.fail(fmt.Errorf("%s: %w", cmd, err))
	}
	c.log.WithField("response", resp).Debug("controller response")
	return resp, nil
}

// waitIdle polls the controller until idleConfirmations+1 consecutive samples
// report Idle. A non-idle sample restarts the count; an unparsable sample is
// skipped without touching it.
func (c *Controller) waitIdle(ctx context.Context) error {
	err := sleep(ctx, c.opts.MotionStartDelay)
	if err != nil {
		return err
	}

	var idle int
	for idle <= idleConfirmations {
		err = ctx.Err()
		if err != nil {
			return fmt.Errorf("wait for idle: %w", err)
		}
		err = c.conn.resetInput()
		if err != nil {
			return err
		}
		err = c.conn.write(statusQuery)
		if err != nil {
			return err
		}
		line, err := c.conn.readLine(ctx)
		if err != nil {
			return err
		}

		stat, err := parseStatus(c.LastStatus(), line)
		if err != nil {
			c.log.WithError(err).Debug("skipping status sample")
			continue
		}
		c.observe(stat)

		if !stat.Idle {
			idle = 0
		} else {
			idle++
		}
		err = sleep(ctx, c.opts.PollInterval)
		if err != nil {
			return fmt.Errorf("wait for idle: %w", err)
		}
	}
	return nil
}

// Status queries the controller once, resampling malformed reports up to
// the configured retry limit. With report set the result is logged.
func (c *Controller) Status(ctx context.Context, report bool) (Status, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	err := c.usable()
	if err != nil {
		return Status{}, err
	}
	stat, err := c.status(ctx)
	if err != nil {
		return Status{}, c.fail(err)
	}
	if report {
		c.log.WithFields(logrus.Fields{
			"state": stat.State,
			"mpos":  stat.MPos,
			"wpos":  stat.WPos,
		}).Info("status")
	}
	return stat, nil
}

func (c *Controller) status(ctx context.Context) (Status, error) {
	var lastErr error
	for i := 0; i < c.opts.StatusRetries; i++ {
		err := c.conn.resetInput()
		if err != nil {
			return Status{}, err
		}
		err = c.conn.write(statusQuery)
		if err != nil {
			return Status{}, err
		}
		line, err := c.conn.readLine(ctx)
		if err != nil {
			return Status{}, err
		}
		stat, err := parseStatus(c.LastStatus(), line)
		if err != nil {
			c.log.WithError(err).Debug("resampling status")
			lastErr = err
			continue
		}
		c.observe(stat)
		return stat, nil
	}
	return Status{}, fmt.Errorf("%w after %d attempts: %w", ErrStatusUnavailable, c.opts.StatusRetries, lastErr)
}

// WorkPosition returns the current work position.
func (c *Controller) WorkPosition(ctx context.Context) (coord.Point, error) {
	stat, err := c.Status(ctx, false)
	if err != nil {
		return coord.Point{}, err
	}
	return stat.WPos, nil
}

// Move moves one axis to pos, see Builder.Move.
func (c *Controller) Move(ctx context.Context, axis string, pos float64, feedRate ...float64) (string, error) {
	cmd, err := c.build.Move(axis, pos, feedRate...)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, cmd)
}

func (c *Controller) Home(ctx context.Context) (string, error) {
	return c.Send(ctx, c.build.Home())
}

func (c *Controller) Unlock(ctx context.Context) (string, error) {
	return c.Send(ctx, c.build.Unlock())
}

func (c *Controller) SetSpindleSpeed(ctx context.Context, speed float64) (string, error) {
	return c.Send(ctx, c.build.SpindleSpeed(speed))
}

// SetWorkPosition makes the current position read as p.
func (c *Controller) SetWorkPosition(ctx context.Context, p coord.Point) (string, error) {
	return c.Send(ctx, c.build.SetWorkOffset(p))
}

// StreamGCode sends every command in r, in order, waiting for each to finish.
// It returns the number of commands sent.
func (c *Controller) StreamGCode(ctx context.Context, r io.Reader) (int, error) {
	lr := gcode.NewLineReader(r)
	var n int
	for {
		line, err := lr.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		c.log.WithField("line", line).Info("sending gcode")
		_, err = c.Send(ctx, Command(line))
		if err != nil {
			return n, err
		}
		n++
	}
}

// Close records the current work position, then closes the port. The port
// is closed even if recording fails.
func (c *Controller) Close(ctx context.Context) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state == StateClosed {
		return ErrNotConnected
	}

	var errs []error
	if c.state == StateReady && c.err == nil && c.opts.Store != nil && !c.opts.DisableAutoSave {
		errs = append(errs, c.save(ctx))
	}

	errs = append(errs, c.conn.close())
	c.state = StateClosed
	c.log.Info("closed")
	return errors.Join(errs...)
}

func (c *Controller) save(ctx context.Context) error {
	stat, err := c.status(ctx)
	if err != nil {
		return fmt.Errorf("record position: %w", err)
	}
	rec := position.NewRecord(c.opts.ID, stat.WPos)
	err = c.opts.Store.Append(rec)
	if err != nil {
		return fmt.Errorf("record position: %w", err)
	}
	c.log.WithField("position", rec.WorkPosition).Info("recorded work position")
	return nil
}
