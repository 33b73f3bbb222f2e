package inventory

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// ErrOutputAssigned is returned when a device's output target is set twice.
var ErrOutputAssigned = errors.New("output target already assigned")

// Device describes one managed network endpoint.
type Device struct {
	Address        netip.Addr
	DeviceType     string
	Username       string
	Password       string
	EnablePassword string

	mu         sync.Mutex
	outputPath string
}

func (d *Device) String() string {
	return d.Address.String()
}

// AssignOutput records the file this device's output goes to. It succeeds once.
func (d *Device) AssignOutput(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outputPath != "" {
		return fmt.Errorf("%s: %w (%s)", d.Address, ErrOutputAssigned, d.outputPath)
	}
	d.outputPath = path
	return nil
}

// OutputPath returns the assigned output file, if any.
func (d *Device) OutputPath() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputPath, d.outputPath != ""
}

// CommandOutput is the raw text one command produced.
type CommandOutput struct {
	Command string
	Output  string
}

// HarvestResult maps command to raw output and keeps insertion order.
type HarvestResult struct {
	entries []CommandOutput
	index   map[string]int
}

// NewHarvestResult returns an empty result.
func NewHarvestResult() *HarvestResult {
	return &HarvestResult{index: map[string]int{}}
}

// Set records output for command. Setting a command again replaces its output in place.
func (r *HarvestResult) Set(command, output string) {
	if i, ok := r.index[command]; ok {
		r.entries[i].Output = output
		return
	}
	r.index[command] = len(r.entries)
	r.entries = append(r.entries, CommandOutput{Command: command, Output: output})
}

// Get returns the output recorded for command.
func (r *HarvestResult) Get(command string) (string, bool) {
	i, ok := r.index[command]
	if !ok {
		return "", false
	}
	return r.entries[i].Output, true
}

// Entries returns the outputs in insertion order.
func (r *HarvestResult) Entries() []CommandOutput {
	out := make([]CommandOutput, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the number of commands recorded.
func (r *HarvestResult) Len() int {
	return len(r.entries)
}
