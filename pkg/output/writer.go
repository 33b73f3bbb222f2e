// Package output persists harvested command output, one file per device.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

// ErrIO marks a failure to create or write an output file.
var ErrIO = errors.New("output i/o failure")

const (
	runDirPrefix = "results_"
	runDirLayout = "2006-01-02_15-04-05"
	fileExt      = ".log"
	ruleWidth    = 75
)

var (
	commandRule = strings.Repeat("-", ruleWidth)
	blockRule   = strings.Repeat("=", ruleWidth)
)

// RunDirName names the directory for a run started at now.
func RunDirName(now time.Time) string {
	return runDirPrefix + now.Format(runDirLayout)
}

// CreateRunDir creates base/results_<timestamp> and returns its path.
func CreateRunDir(base string, now time.Time) (string, error) {
	dir := filepath.Join(base, RunDirName(now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
	}
	return dir, nil
}

// Writer names and writes per-device files inside one run directory.
type Writer struct {
	dir    string
	logger *logging.Logger

	mu      sync.Mutex
	claimed map[string]*inventory.Device

	syncFile func(*os.File) error
}

// NewWriter writes into dir, which must exist.
func NewWriter(dir string, logger *logging.Logger) *Writer {
	return &Writer{dir: dir, logger: logger, claimed: map[string]*inventory.Device{}, syncFile: (*os.File).Sync}
}

// Dir returns the run directory.
func (w *Writer) Dir() string {
	return w.dir
}

// claim reserves a file name for dev. A hostname already taken by another device
// in this run gets the device address appended, then a counter, so files never overlap.
func (w *Writer) claim(dev *inventory.Device, hostname string) (string, error) {
	base := inventory.NormalizeHostname(hostname)
	if base == "" {
		return "", fmt.Errorf("%w: %s: empty hostname", ErrIO, dev)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	name := base
	for n := 1; ; n++ {
		owner, taken := w.claimed[name]
		if !taken || owner == dev {
			break
		}
		next := base + "_" + dev.String()
		if n > 1 {
			next = fmt.Sprintf("%s_%s_%d", base, dev, n)
		}
		w.logger.Warnf("%s: file name %s already used by %s, trying %s%s", dev, name, owner, next, fileExt)
		name = next
	}
	w.claimed[name] = dev
	return filepath.Join(w.dir, name+fileExt), nil
}

// Open creates or truncates the device's file and records it as the device's output target.
func (w *Writer) Open(dev *inventory.Device, hostname string) (string, error) {
	if path, assigned := dev.OutputPath(); assigned {
		return "", fmt.Errorf("%w: %s already writing to %s", ErrIO, dev, path)
	}
	path, err := w.claim(dev, hostname)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := dev.AssignOutput(path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	return path, nil
}

// Append writes every command block of res, in order, to the device's file and
// closes it before returning.
func (w *Writer) Append(dev *inventory.Device, res *inventory.HarvestResult) (err error) {
	path, assigned := dev.OutputPath()
	if !assigned {
		return fmt.Errorf("%w: %s: output file not opened", ErrIO, dev)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrIO, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	for _, entry := range res.Entries() {
		if err := WriteBlock(bw, entry.Command, entry.Output); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := w.syncFile(f); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Save opens the device's file and appends res to it. A file that could not be
// written completely is removed.
func (w *Writer) Save(dev *inventory.Device, hostname string, res *inventory.HarvestResult) (string, error) {
	path, err := w.Open(dev, hostname)
	if err != nil {
		return "", err
	}
	if err := w.Append(dev, res); err != nil {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			w.logger.Errorf("%s: remove partial %s: %v", dev, path, rerr)
		}
		return "", err
	}
	w.logger.Debugf("%s: wrote %d command blocks to %s", dev, res.Len(), path)
	return path, nil
}

// WriteBlock writes one framed command block.
func WriteBlock(w io.Writer, command, output string) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n\n%s\n%s\n\n\n", command, commandRule, output, blockRule)
	return err
}
