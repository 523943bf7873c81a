package backlight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

func writeTestFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bl_power")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// countingFile counts writes that reach the underlying file.
type countingFile struct {
	*os.File
	writes int
}

func (f *countingFile) Write(p []byte) (int, error) {
	f.writes++
	return f.File.Write(p)
}

func openCounting(t *testing.T, path string) (*Controller, *countingFile) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	cf := &countingFile{File: f}
	c := newController(cf, logging.Discard())
	c.Check()
	t.Cleanup(func() { _ = c.Close() })
	return c, cf
}

func TestOpen_PrimesState(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		want     State
	}{
		{"on", "0\n", On},
		{"off", "1\n", Off},
		{"empty keeps default", "", On},
		{"garbage keeps default", "x", On},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, tt.contents)
			c, err := Open(path, logging.Discard())
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer c.Close()

			if c.State() != tt.want {
				t.Fatalf("State() = %v, want %v", c.State(), tt.want)
			}
			if c.Check() {
				t.Fatal("Check() after priming = true, want false")
			}
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), logging.Discard())
	if err == nil {
		t.Fatal("Open() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "open backlight") {
		t.Fatalf("Open() error = %q, want contains %q", err.Error(), "open backlight")
	}
}

func TestSet_Idempotent(t *testing.T) {
	path := writeTestFile(t, "0\n")
	c, cf := openCounting(t, path)

	if !c.Set(Off) {
		t.Fatal("first Set(Off) = false, want true")
	}
	if c.Set(Off) {
		t.Fatal("second Set(Off) = true, want false")
	}
	if cf.writes != 1 {
		t.Fatalf("writes = %d, want 1", cf.writes)
	}
	if got := readTestFile(t, path); got != "1\n" {
		t.Fatalf("file = %q, want %q", got, "1\n")
	}
	if c.State() != Off {
		t.Fatalf("State() = %v, want off", c.State())
	}

	if !c.Set(On) {
		t.Fatal("Set(On) = false, want true")
	}
	if cf.writes != 2 {
		t.Fatalf("writes = %d, want 2", cf.writes)
	}
	if got := readTestFile(t, path); got != "0\n" {
		t.Fatalf("file = %q, want %q", got, "0\n")
	}
}

func TestSet_NoWriteWhenAlreadyOn(t *testing.T) {
	path := writeTestFile(t, "0")
	c, cf := openCounting(t, path)

	if c.Set(On) {
		t.Fatal("Set(On) = true, want false when already on")
	}
	if cf.writes != 0 {
		t.Fatalf("writes = %d, want 0", cf.writes)
	}
}

func TestCheck_DetectsExternalChange(t *testing.T) {
	path := writeTestFile(t, "0")
	c, _ := openCounting(t, path)

	if c.Check() {
		t.Fatal("Check() = true without change")
	}

	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !c.Check() {
		t.Fatal("Check() = false after external change to off")
	}
	if c.State() != Off {
		t.Fatalf("State() = %v, want off", c.State())
	}
	if c.Check() {
		t.Fatal("Check() = true twice for the same change")
	}

	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !c.Check() {
		t.Fatal("Check() = false after external change to on")
	}
	if c.State() != On {
		t.Fatalf("State() = %v, want on", c.State())
	}
}

func TestCheck_OwnWriteIsNotExternal(t *testing.T) {
	path := writeTestFile(t, "0")
	c, _ := openCounting(t, path)

	c.Set(Off)
	if c.Check() {
		t.Fatal("Check() = true after own Set, want false")
	}
}

func TestStateStrings(t *testing.T) {
	for _, s := range []State{On, Off} {
		got, ok := StateFromString(s.String())
		if !ok || got != s {
			t.Fatalf("StateFromString(%q) = %v, %v; want %v", s.String(), got, ok, s)
		}
	}
	if _, ok := StateFromString("dim"); ok {
		t.Fatal("StateFromString(dim) ok = true, want false")
	}
	if _, ok := ParseState('2'); ok {
		t.Fatal("ParseState('2') ok = true, want false")
	}
}
