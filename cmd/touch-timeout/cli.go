package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/touch-timeout/internal/config"
	"github.com/cptspacemanspiff/touch-timeout/internal/logging"
)

type options struct {
	configPath  string
	writeConfig string
	history     time.Duration
	verbose     bool
	logTopics   string

	timeout    int
	timeoutSet bool
	devices    []string
}

func parseArgs(args []string, out io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("touch-timeout", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write the effective config to this path and exit")
	fs.DurationVar(&opts.history, "history", 0, "print recorded backlight and device history for this far back and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable all verbose logging (equivalent to -log=all)")
	fs.StringVar(&opts.logTopics, "log", "", "comma-separated log topics: "+strings.Join(logging.Topics, ",")+" (or 'all')")
	fs.Usage = func() { printUsage(out, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) > 0 {
		t, err := parseTimeout(rest[0])
		if err != nil {
			fmt.Fprintln(out, err)
			fs.Usage()
			return nil, err
		}
		opts.timeout = t
		opts.timeoutSet = true
		opts.devices = rest[1:]
	}
	return opts, nil
}

// parseTimeout accepts a plain decimal number of seconds. Values beyond
// config.MaxTimeoutSeconds are clamped to it.
func parseTimeout(s string) (int, error) {
	if s == "" {
		return 0, errors.New("timeout value is not a number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("timeout value %q is not a number", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n > config.MaxTimeoutSeconds {
		return config.MaxTimeoutSeconds, nil
	}
	return int(n), nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "\nUsage: touch-timeout [flags] [<timeout_sec> [<device>...]]\n")
	fmt.Fprintf(w, "    Devices are bare names under the input directory, e.g. event0 for /dev/input/event0.\n")
	fmt.Fprintf(w, "    Without devices every eventX node is monitored, including ones plugged in later.\n")
	fmt.Fprintf(w, "    Use -log input to print the value and code of each input event.\n\n")
	fmt.Fprintf(w, "Flags:\n")
	fs.PrintDefaults()
	fmt.Fprintln(w)
}
