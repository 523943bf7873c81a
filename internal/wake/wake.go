// Package wake reports system resume from suspend so that the display can be
// lit when the machine comes back.
package wake

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	loginManager    = "org.freedesktop.login1.Manager"
	prepareForSleep = loginManager + ".PrepareForSleep"
)

// Monitor listens for systemd-logind PrepareForSleep signals and delivers a
// value on Resumed each time the system wakes.
type Monitor struct {
	conn *dbus.Conn
	done chan struct{}
	wake chan struct{}
	log  *slog.Logger
}

// NewMonitor connects to the system bus and subscribes to PrepareForSleep.
func NewMonitor(logger *slog.Logger) (*Monitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(loginManager),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return nil, err
	}

	m := newMonitor(logger)
	m.conn = conn
	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	go m.listen(ch)
	return m, nil
}

func newMonitor(logger *slog.Logger) *Monitor {
	return &Monitor{
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
		log:  logger,
	}
}

// Resumed returns a channel that receives a value each time the system wakes
// from sleep. Wakes that arrive before the previous one is consumed coalesce.
func (m *Monitor) Resumed() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *Monitor) Close() {
	close(m.done)
}

func (m *Monitor) listen(ch chan *dbus.Signal) {
	if m.conn != nil {
		defer m.conn.RemoveSignal(ch)
	}

	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *Monitor) handle(sig *dbus.Signal) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	if active {
		m.log.Info("system going to sleep")
		return
	}
	m.log.Info("system woke up")
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
