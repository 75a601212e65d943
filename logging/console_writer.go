package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/pkg/errors"
)

// ConsoleWriter turns zerolog JSON events into colored, human readable lines.
type ConsoleWriter struct {
	out      io.Writer
	colorize colorstring.Colorize
	verbose  bool
	wd       string
	buffer   strings.Builder
	lock     sync.Mutex
}

func NewConsoleWriter(out io.Writer, noColor, verbose bool) *ConsoleWriter {
	wd, _ := os.Getwd()
	return &ConsoleWriter{
		out: out,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: noColor,
		},
		verbose: verbose,
		wd:      wd,
	}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return 0, errors.Wrapf(err, "cannot decode event: %s", p)
	}

	var color string
	switch evt["level"] {
	case "fatal", "error":
		color = "[red]"
	case "warn":
		color = "[yellow]"
	case "debug", "trace":
		color = "[blue]"
	default:
		color = "[green]"
	}

	// Only the level color goes through colorstring; message text is
	// written as is so brackets in paths and tool output survive.
	w.buffer.Reset()

	msg, _ := evt["message"].(string)
	if file, ok := evt["file"].(string); ok {
		// simplify the path
		if rel, err := filepath.Rel(w.wd, file); w.wd != "" && err == nil && !strings.HasPrefix(rel, "..") {
			msg = strings.ReplaceAll(msg, file, rel)
		}
	}
	w.buffer.WriteString(msg)

	if errorDetails, ok := evt["error"]; ok {
		w.buffer.WriteString(": ")
		w.buffer.WriteString(fmt.Sprint(errorDetails))
	}

	if w.verbose {
		keys := make([]string, 0, len(evt))
		for name := range evt {
			switch name {
			case "level", "message", "error", "time":
				continue
			}
			keys = append(keys, name)
		}
		sort.Strings(keys)
		for _, name := range keys {
			w.buffer.WriteString(fmt.Sprintf("\n  %s: %v", name, evt[name]))
		}
	}

	line := w.colorize.Color(color) + w.buffer.String() + w.colorize.Color("[reset]") + "\n"
	if _, err := io.WriteString(w.out, line); err != nil {
		return 0, err
	}
	return len(p), nil
}
