package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

func encodeEvents(t *testing.T, events ...evdev.InputEvent) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, events); err != nil {
		t.Fatalf("encode events: %v", err)
	}
	return buf.Bytes()
}

// readWithin fails the test if ReadEvent does not return before the deadline.
func readWithin(t *testing.T, src Source, d time.Duration) (Event, error) {
	t.Helper()

	type result struct {
		ev  Event
		err error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := src.ReadEvent()
		done <- result{ev, err}
	}()
	select {
	case r := <-done:
		return r.ev, r.err
	case <-time.After(d):
		t.Fatalf("ReadEvent() still blocked after %v", d)
		return Event{}, nil
	}
}

func newPipeSource(t *testing.T) (*fdSource, int) {
	t.Helper()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	src := newFDSource(fds[0])
	t.Cleanup(func() {
		src.Close()
		unix.Close(fds[1])
	})
	return src, fds[1]
}

func TestFDSource_EmptyDescriptorWouldBlock(t *testing.T) {
	src, _ := newPipeSource(t)

	if _, err := readWithin(t, src, time.Second); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("ReadEvent() error = %v, want ErrWouldBlock", err)
	}
}

func TestFDSource_DecodesRecords(t *testing.T) {
	src, w := newPipeSource(t)

	record := encodeEvents(t,
		evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.EvCode(0x14a), Value: 1},
		evdev.InputEvent{Type: evdev.EV_SYN, Code: 0, Value: 0},
	)
	if len(record) != 2*eventSize {
		t.Fatalf("encoded %d bytes, want %d", len(record), 2*eventSize)
	}
	if _, err := unix.Write(w, record); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev, err := readWithin(t, src, time.Second)
	if err != nil {
		t.Fatalf("ReadEvent() error = %v", err)
	}
	if want := (Event{Type: uint16(evdev.EV_KEY), Code: 0x14a, Value: 1}); ev != want {
		t.Fatalf("ReadEvent() = %+v, want %+v", ev, want)
	}
	ev, err = readWithin(t, src, time.Second)
	if err != nil {
		t.Fatalf("second ReadEvent() error = %v", err)
	}
	if ev.Type != uint16(evdev.EV_SYN) {
		t.Fatalf("second event type = %d, want EV_SYN", ev.Type)
	}
	if _, err := readWithin(t, src, time.Second); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("drained ReadEvent() error = %v, want ErrWouldBlock", err)
	}
}

func TestFDSource_ClosedWriterIsAnError(t *testing.T) {
	src, w := newPipeSource(t)
	unix.Close(w)

	_, err := readWithin(t, src, time.Second)
	if err == nil || errors.Is(err, ErrWouldBlock) {
		t.Fatalf("ReadEvent() error = %v, want a hard error", err)
	}
}

func TestOpenEvdev_QuietNodeDoesNotBlockPoll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event0")
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo unsupported: %v", err)
	}

	reg := NewRegistry(dir, "event", OpenEvdev, logging.Discard())
	reg.Add("event0")
	if failed := reg.OpenAll(); len(failed) != 0 {
		t.Fatalf("OpenAll() failed = %v", failed)
	}
	defer reg.CloseAll()

	// Keep a writer attached so an empty FIFO reads as EAGAIN, not EOF.
	writer, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()

	polled := make(chan bool, 1)
	go func() { polled <- reg.Poll(0) }()
	select {
	case active := <-polled:
		if active {
			t.Fatal("Poll() = true on a quiet node")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll() blocked on a quiet node")
	}
	if !reg.Device(0).IsOpen() {
		t.Fatal("quiet node was closed")
	}

	if _, err := writer.Write(encodeEvents(t, evdev.InputEvent{Type: evdev.EV_ABS, Code: 0, Value: 512})); err != nil {
		t.Fatalf("write event: %v", err)
	}
	if !reg.Poll(0) {
		t.Fatal("Poll() = false after an event was written")
	}
}

func TestOpenEvdev_MissingNode(t *testing.T) {
	if _, err := OpenEvdev(filepath.Join(t.TempDir(), "event9")); err == nil {
		t.Fatal("OpenEvdev() error = nil, want error")
	}
}
