package device

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

// ChangeKind says how a directory notification affected the registry.
type ChangeKind string

const (
	Connected    ChangeKind = "connected"
	Disconnected ChangeKind = "disconnected"
	Closed       ChangeKind = "closed"
)

// Change is the registry update caused by one notification.
type Change struct {
	Timestamp int64
	Name      string
	Kind      ChangeKind
}

// Watcher follows node creation and removal in the registry's directory.
// In auto mode the registry mirrors the directory; otherwise removals only
// close the handle of an explicitly configured device and creations are left
// to the poller's reopen.
type Watcher struct {
	fsw  *fsnotify.Watcher
	reg  *Registry
	auto bool
	log  *slog.Logger
}

// notifyBuffer holds one burst of directory notifications so a single Poll
// sees all of them.
const notifyBuffer = 64

// NewWatcher starts watching reg's directory.
func NewWatcher(reg *Registry, auto bool, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewBufferedWatcher(notifyBuffer)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(reg.Dir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", reg.Dir(), err)
	}
	return &Watcher{fsw: fsw, reg: reg, auto: auto, log: logger}, nil
}

// Poll applies every notification queued so far and returns the resulting
// registry changes. It never blocks.
func (w *Watcher) Poll() []Change {
	var changes []Change
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return changes
			}
			if c, ok := w.apply(ev); ok {
				changes = append(changes, c)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return changes
			}
			w.log.Warn("watcher error", "err", err)
		default:
			return changes
		}
	}
}

func (w *Watcher) apply(ev fsnotify.Event) (Change, bool) {
	name := filepath.Base(ev.Name)
	if !w.reg.Matches(name) {
		return Change{}, false
	}
	w.log.Debug("notification", "topic", logging.TopicWatcher, "name", name, "op", ev.Op.String())

	switch {
	case ev.Has(fsnotify.Create):
		if !w.auto {
			return Change{}, false
		}
		added := w.reg.Add(name)
		w.reg.Open(name)
		if !added {
			return Change{}, false
		}
		w.log.Info("device connected", "device", name)
		return Change{Name: name, Kind: Connected}, true
	case ev.Has(fsnotify.Remove):
		if w.auto {
			if !w.reg.Remove(name) {
				return Change{}, false
			}
			w.log.Info("device disconnected", "device", name)
			return Change{Name: name, Kind: Disconnected}, true
		}
		if !w.reg.Close(name) {
			return Change{}, false
		}
		return Change{Name: name, Kind: Closed}, true
	}
	return Change{}, false
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
