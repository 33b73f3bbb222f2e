// Package runner executes one complete harvest pass: read addresses, register
// devices, drop unreachable ones and collect configuration from the rest.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/discovery"
	"github.com/x1thexxx-lgtm/devconf/pkg/fingerprint"
	"github.com/x1thexxx-lgtm/devconf/pkg/harvest"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
	"github.com/x1thexxx-lgtm/devconf/pkg/output"
	"github.com/x1thexxx-lgtm/devconf/pkg/session"
)

// ErrEmptyDeviceList means there was nothing left to harvest. It ends a run early
// without being a failure.
var ErrEmptyDeviceList = errors.New("no devices to harvest")

// Deps are the collaborators of a run. Zero fields get production defaults.
type Deps struct {
	Input    string
	Dialer   session.Dialer
	Resolver harvest.HostnameResolver
	Now      func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	Input     string
	RunDir    string
	Addresses int
	Devices   int
	Reachable int
	Report    harvest.Report
	Started   time.Time
	Elapsed   time.Duration
}

// Runner performs harvest passes. It satisfies scheduler.TaskRunner.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *logging.Logger

	mu   sync.Mutex
	last *Summary
}

// New creates a runner for cfg reading addresses from deps.Input.
func New(cfg *config.Config, deps Deps, logger *logging.Logger) *Runner {
	if deps.Dialer == nil {
		deps.Dialer = session.NewDialer(cfg, logger.With("component", "session"))
	}
	if deps.Resolver == nil {
		deps.Resolver = fingerprint.NewResolver(cfg.SNMP, logger.With("component", "snmp"))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// Run executes one pass and discards the summary.
func (r *Runner) Run(ctx context.Context) error {
	_, err := r.Execute(ctx)
	return err
}

// Last returns the summary of the most recent pass, if any.
func (r *Runner) Last() (*Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.last != nil
}

// Execute runs one pass. Only unreadable input and an uncreatable output directory
// are errors; per-device failures are reported in the summary.
func (r *Runner) Execute(ctx context.Context) (*Summary, error) {
	sum := &Summary{Input: r.deps.Input, Started: r.deps.Now()}
	defer func() {
		sum.Elapsed = time.Since(sum.Started)
		r.mu.Lock()
		r.last = sum
		r.mu.Unlock()
	}()

	addrs, err := inventory.ReadAddresses(r.deps.Input, r.logger)
	if err != nil {
		return sum, err
	}
	sum.Addresses = len(addrs)
	if len(addrs) == 0 {
		return sum, fmt.Errorf("%s: %w: no valid addresses", r.deps.Input, ErrEmptyDeviceList)
	}

	registry := inventory.NewRegistry(addrs, r.cfg)
	sum.Devices = registry.Len()
	r.logger.Infof("registered %d devices (%s)", sum.Devices, r.cfg.DeviceType)

	runDir, err := output.CreateRunDir(r.cfg.Output.BaseDir, sum.Started)
	if err != nil {
		return sum, err
	}
	sum.RunDir = runDir
	r.logger.Infof("writing results to %s", runDir)

	reachable := discovery.NewFilter(r.cfg, r.deps.Dialer, r.logger).Reachable(ctx, registry.Devices())
	sum.Reachable = len(reachable)
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if len(reachable) == 0 {
		return sum, fmt.Errorf("%w: none of %d devices answered", ErrEmptyDeviceList, sum.Devices)
	}

	writer := output.NewWriter(runDir, r.logger)
	sum.Report = harvest.New(r.cfg, r.deps.Dialer, writer, r.deps.Resolver, r.logger).Run(ctx, reachable)
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	for _, out := range sum.Report.Failed() {
		r.logger.Warnf("not saved: %v", out.Err)
	}
	r.logger.Infof("run complete: %d of %d reachable devices saved to %s",
		len(sum.Report.Succeeded()), sum.Reachable, runDir)
	return sum, nil
}
