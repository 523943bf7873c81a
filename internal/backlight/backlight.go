// Package backlight drives a single-character sysfs power file such as
// /sys/class/backlight/rpi_backlight/bl_power, where '0' means the panel is
// lit and '1' means it is blanked.
package backlight

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

// State is the power state as encoded in the control file.
type State byte

const (
	On  State = '0'
	Off State = '1'
)

func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Off:
		return "off"
	}
	return fmt.Sprintf("unknown(%q)", byte(s))
}

// ParseState decodes one byte of the control file.
func ParseState(b byte) (State, bool) {
	switch State(b) {
	case On, Off:
		return State(b), true
	}
	return 0, false
}

// StateFromString is the inverse of State.String.
func StateFromString(s string) (State, bool) {
	switch s {
	case "on":
		return On, true
	case "off":
		return Off, true
	}
	return 0, false
}

// Cause says what drove a backlight transition.
type Cause string

const (
	CauseIdle     Cause = "idle"
	CauseInput    Cause = "input"
	CauseExternal Cause = "external"
	CauseResume   Cause = "resume"
)

// Transition records one change of backlight state.
type Transition struct {
	Timestamp int64
	State     State
	Cause     Cause
}

type controlFile interface {
	io.ReadWriteSeeker
	io.Closer
}

// Controller owns the open control file and caches the last known state.
// The file is the source of truth: Check refreshes the cache from it.
type Controller struct {
	f     controlFile
	state State
	log   *slog.Logger
}

// Open opens the control file read-write and non-blocking, then primes the
// cached state from its current content.
func Open(path string, logger *slog.Logger) (*Controller, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open backlight %s: %w", path, err)
	}
	c := newController(f, logger)
	c.Check()
	logger.Info("backlight opened", "path", path, "state", c.state)
	return c, nil
}

func newController(f controlFile, logger *slog.Logger) *Controller {
	return &Controller{f: f, state: On, log: logger}
}

// State returns the cached state.
func (c *Controller) State() State {
	return c.state
}

// Check reads the control file and reports whether its content differs from
// the cached state. A difference means something other than this process
// changed the backlight; the cache is updated to match.
func (c *Controller) Check() bool {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		c.log.Debug("seek failed", "topic", logging.TopicBacklight, "err", err)
		return false
	}
	var buf [1]byte
	n, err := c.f.Read(buf[:])
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, unix.EAGAIN) {
			c.log.Debug("read failed", "topic", logging.TopicBacklight, "err", err)
		}
		return false
	}
	s, ok := ParseState(buf[0])
	if !ok {
		c.log.Debug("unexpected content", "topic", logging.TopicBacklight, "byte", fmt.Sprintf("%q", buf[0]))
		return false
	}
	if s == c.state {
		return false
	}
	c.state = s
	return true
}

// Set writes target to the control file unless the cache already holds it.
// It reports whether a write was issued.
func (c *Controller) Set(target State) bool {
	if c.state == target {
		return false
	}
	if target == On {
		c.log.Info("turning on")
	} else {
		c.log.Info("turning off")
	}
	// The cache follows the target even if the write fails, otherwise every
	// tick would retry and log.
	c.state = target
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		c.log.Error("seek backlight", "err", err)
		return true
	}
	if _, err := c.f.Write([]byte{byte(target)}); err != nil {
		c.log.Error("write backlight", "err", err)
	}
	return true
}

func (c *Controller) Close() error {
	return c.f.Close()
}
