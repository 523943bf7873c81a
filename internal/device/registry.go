// Package device tracks the input devices whose events count as user
// activity: which ones are known, which are currently open, and whether any
// of them produced input since the last poll.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

// maxNameLen matches NAME_MAX for a single path component.
const maxNameLen = 255

// maxEventsPerPoll bounds how many records one device may yield per tick.
const maxEventsPerPoll = 64

// ErrWouldBlock is returned by Source.ReadEvent when no event is queued.
var ErrWouldBlock = errors.New("no input event available")

// Event is the part of a kernel input_event the daemon cares about.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Source is an open, non-blocking input device.
type Source interface {
	ReadEvent() (Event, error)
	Close() error
}

// OpenFunc opens the device node at path.
type OpenFunc func(path string) (Source, error)

// Device is one monitored input device. src is nil while the node is closed
// or could not be opened.
type Device struct {
	Name string
	src  Source
}

// IsOpen reports whether the device currently has an open handle.
func (d *Device) IsOpen() bool {
	return d.src != nil
}

// ValidateName checks that name is a bare file name usable under the device
// directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("device name must not be empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("device name %q longer than %d bytes", name, maxNameLen)
	}
	if strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return fmt.Errorf("device name %q must be a bare file name", name)
	}
	return nil
}

// Registry is the ordered set of monitored devices. It owns every device
// handle. Names are unique.
type Registry struct {
	dir     string
	marker  string
	open    OpenFunc
	devices []*Device
	log     *slog.Logger
}

// NewRegistry returns an empty registry for devices under dir whose names
// contain marker.
func NewRegistry(dir, marker string, open OpenFunc, logger *slog.Logger) *Registry {
	return &Registry{dir: dir, marker: marker, open: open, log: logger}
}

// Dir returns the device directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Matches reports whether name looks like a device this registry monitors.
func (r *Registry) Matches(name string) bool {
	return strings.Contains(name, r.marker)
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Names returns the registered device names in insertion order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.devices))
	for i, d := range r.devices {
		names[i] = d.Name
	}
	return names
}

// Device returns the device at index i.
func (r *Registry) Device(i int) *Device {
	return r.devices[i]
}

// Find returns the index of the device called name.
func (r *Registry) Find(name string) (int, bool) {
	for i, d := range r.devices {
		if d.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Add registers name with no open handle. It is a no-op returning false if
// the name is invalid or already registered.
func (r *Registry) Add(name string) bool {
	if err := ValidateName(name); err != nil {
		r.log.Warn("ignoring device", "err", err)
		return false
	}
	if _, ok := r.Find(name); ok {
		return false
	}
	r.devices = append(r.devices, &Device{Name: name})
	return true
}

// Remove closes and evicts the device called name, keeping the order of the
// remaining entries.
func (r *Registry) Remove(name string) bool {
	i, ok := r.Find(name)
	if !ok {
		return false
	}
	r.closeDevice(r.devices[i])
	r.devices = slices.Delete(r.devices, i, i+1)
	return true
}

// Close closes the handle of the device called name but keeps it registered
// so that it is reopened once the node reappears.
func (r *Registry) Close(name string) bool {
	i, ok := r.Find(name)
	if !ok {
		return false
	}
	r.closeDevice(r.devices[i])
	return true
}

// CloseAll closes every open handle.
func (r *Registry) CloseAll() {
	for _, d := range r.devices {
		r.closeDevice(d)
	}
}

// Enumerate registers every entry of the device directory whose name contains
// the marker. It returns how many devices were added.
func (r *Registry) Enumerate() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", r.dir, err)
	}
	added := 0
	for _, e := range entries {
		if e.IsDir() || !r.Matches(e.Name()) {
			continue
		}
		if r.Add(e.Name()) {
			added++
		}
	}
	return added, nil
}

// Open opens the device called name if it is registered and not already
// open. It reports whether the device has an open handle afterwards.
func (r *Registry) Open(name string) bool {
	i, ok := r.Find(name)
	if !ok {
		return false
	}
	return r.openDevice(r.devices[i])
}

// OpenAll tries to open every closed device and returns the names that could
// not be opened.
func (r *Registry) OpenAll() []string {
	var failed []string
	for _, d := range r.devices {
		if !r.openDevice(d) {
			failed = append(failed, d.Name)
		}
	}
	return failed
}

func (r *Registry) openDevice(d *Device) bool {
	if d.src != nil {
		return true
	}
	src, err := r.open(filepath.Join(r.dir, d.Name))
	if err != nil {
		r.log.Debug("open failed", "topic", logging.TopicDevice, "device", d.Name, "err", err)
		return false
	}
	d.src = src
	r.log.Info("opened device", "device", d.Name)
	return true
}

func (r *Registry) closeDevice(d *Device) {
	if d.src == nil {
		return
	}
	if err := d.src.Close(); err != nil {
		r.log.Debug("close failed", "topic", logging.TopicDevice, "device", d.Name, "err", err)
	}
	d.src = nil
	r.log.Info("closed device", "device", d.Name)
}
