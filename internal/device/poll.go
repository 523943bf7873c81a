package device

import (
	"errors"
	"fmt"

	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

// Poll checks the device at index i for input without blocking. A closed
// device is reopened first; if that fails the device reports no activity and
// is retried on the next poll. A read error other than would-block closes the
// handle.
func (r *Registry) Poll(i int) bool {
	d := r.devices[i]
	if !r.openDevice(d) {
		return false
	}

	var first Event
	n := 0
	for n < maxEventsPerPoll {
		ev, err := d.src.ReadEvent()
		if err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				r.log.Info("read failed", "device", d.Name, "err", err)
				r.closeDevice(d)
			}
			break
		}
		if n == 0 {
			first = ev
		}
		n++
	}
	if n == 0 {
		return false
	}

	r.log.Info("input",
		"topic", logging.TopicInput,
		"device", d.Name,
		"value", first.Value,
		"code", fmt.Sprintf("%x", first.Code),
		"events", n)
	return true
}

// PollAll polls every registered device and reports whether any of them had
// input. Every device is drained, even after the first one reports activity.
func (r *Registry) PollAll() bool {
	active := false
	for i := range r.devices {
		if r.Poll(i) {
			active = true
		}
	}
	return active
}
