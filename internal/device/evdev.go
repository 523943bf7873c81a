package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"
)

// eventSize is the size of one kernel input_event record on this platform.
var eventSize = binary.Size(evdev.InputEvent{})

// fdSource reads input_event records from a raw non-blocking descriptor.
// The descriptor is never handed to the Go runtime poller, so a read on a
// quiet device fails with EAGAIN instead of parking the goroutine.
type fdSource struct {
	fd      int
	buf     []byte
	pending []Event
}

// OpenEvdev opens a /dev/input event node read-only and non-blocking.
func OpenEvdev(path string) (Source, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newFDSource(fd), nil
}

func newFDSource(fd int) *fdSource {
	return &fdSource{fd: fd, buf: make([]byte, maxEventsPerPoll*eventSize)}
}

func (s *fdSource) ReadEvent() (Event, error) {
	if len(s.pending) == 0 {
		if err := s.fill(); err != nil {
			return Event{}, err
		}
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *fdSource) fill() error {
	n, err := unix.Read(s.fd, s.buf)
	switch {
	case errors.Is(err, unix.EAGAIN):
		return ErrWouldBlock
	case err != nil:
		return err
	case n == 0:
		return io.EOF
	case n%eventSize != 0:
		return fmt.Errorf("short input event read: %d bytes", n)
	}

	records := make([]evdev.InputEvent, n/eventSize)
	if err := binary.Read(bytes.NewReader(s.buf[:n]), binary.NativeEndian, records); err != nil {
		return fmt.Errorf("decode input events: %w", err)
	}
	s.pending = s.pending[:0]
	for _, r := range records {
		s.pending = append(s.pending, Event{Type: uint16(r.Type), Code: uint16(r.Code), Value: r.Value})
	}
	return nil
}

func (s *fdSource) Close() error {
	s.pending = nil
	return unix.Close(s.fd)
}
