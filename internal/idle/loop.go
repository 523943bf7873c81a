// Package idle runs the polling loop that blanks the display after a period
// without activity and lights it again on input.
package idle

import (
	"context"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/touch-timeout/internal/backlight"
	"github.com/cptspacemanspiff/touch-timeout/internal/device"
	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

// Backlight is the display power switch driven by the loop.
type Backlight interface {
	Check() bool
	Set(backlight.State) bool
	State() backlight.State
}

// Watcher reports device registry changes caused by directory notifications.
type Watcher interface {
	Poll() []device.Change
}

// Recorder stores transitions and device changes.
type Recorder interface {
	RecordTransition(backlight.Transition) error
	RecordDeviceChange(device.Change) error
	DeleteOlderThan(before int64) (int64, error)
}

// Config wires a Loop. Watcher, Recorder and Resumed are optional.
type Config struct {
	Registry  *device.Registry
	Watcher   Watcher
	Backlight Backlight
	Recorder  Recorder
	Resumed   <-chan struct{}

	Timeout  time.Duration
	Interval time.Duration

	// Retention and CleanupEvery control history pruning; zero disables it.
	Retention    time.Duration
	CleanupEvery time.Duration

	Logger *slog.Logger
}

// Loop holds all runtime state of the daemon. It is not safe for concurrent
// use; Run and Tick must be called from one goroutine.
type Loop struct {
	cfg     Config
	log     *slog.Logger
	histLog *slog.Logger

	lastActivity time.Time
	lastCleanup  time.Time
}

// New returns a loop whose idle timer starts at start.
func New(cfg Config, start time.Time) *Loop {
	return &Loop{
		cfg:          cfg,
		log:          cfg.Logger,
		histLog:      cfg.Logger.With("topic", logging.TopicHistory),
		lastActivity: start,
	}
}

// LastActivity returns the time of the most recent activity.
func (l *Loop) LastActivity() time.Time {
	return l.lastActivity
}

// Run ticks every Interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		// Strip monotonic so idle time is measured on the wall clock.
		l.Tick(time.Now().Round(0))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one iteration of the loop at time now.
func (l *Loop) Tick(now time.Time) {
	light := l.cfg.Backlight

	if light.Check() {
		if light.State() == backlight.On {
			l.log.Info("power enabled externally, timeout reset")
		} else {
			l.log.Info("power disabled externally")
		}
		l.lastActivity = now
		l.recordTransition(now, light.State(), backlight.CauseExternal)
	}

	if l.cfg.Watcher != nil {
		for _, c := range l.cfg.Watcher.Poll() {
			c.Timestamp = now.Unix()
			l.recordChange(c)
		}
	}

	if l.cfg.Registry.PollAll() {
		l.activity(now, backlight.CauseInput)
	}

	if l.cfg.Resumed != nil {
		select {
		case <-l.cfg.Resumed:
			l.activity(now, backlight.CauseResume)
		default:
		}
	}

	if now.Sub(l.lastActivity) > l.cfg.Timeout {
		if light.Set(backlight.Off) {
			l.recordTransition(now, backlight.Off, backlight.CauseIdle)
		}
	}

	l.cleanup(now)
}

func (l *Loop) activity(now time.Time, cause backlight.Cause) {
	l.lastActivity = now
	if l.cfg.Backlight.Set(backlight.On) {
		l.recordTransition(now, backlight.On, cause)
	}
}

func (l *Loop) recordTransition(now time.Time, s backlight.State, cause backlight.Cause) {
	if l.cfg.Recorder == nil {
		return
	}
	t := backlight.Transition{Timestamp: now.Unix(), State: s, Cause: cause}
	if err := l.cfg.Recorder.RecordTransition(t); err != nil {
		l.log.Error("store transition", "err", err)
	}
}

func (l *Loop) recordChange(c device.Change) {
	if l.cfg.Recorder == nil {
		return
	}
	if err := l.cfg.Recorder.RecordDeviceChange(c); err != nil {
		l.log.Error("store device change", "err", err)
	}
}

func (l *Loop) cleanup(now time.Time) {
	if l.cfg.Recorder == nil || l.cfg.Retention <= 0 || l.cfg.CleanupEvery <= 0 {
		return
	}
	if !l.lastCleanup.IsZero() && now.Sub(l.lastCleanup) < l.cfg.CleanupEvery {
		return
	}
	l.lastCleanup = now
	n, err := l.cfg.Recorder.DeleteOlderThan(now.Add(-l.cfg.Retention).Unix())
	if err != nil {
		l.log.Error("history cleanup", "err", err)
		return
	}
	l.histLog.Info("history cleanup", "deleted", n)
}
