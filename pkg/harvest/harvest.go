// Package harvest logs into each reachable device, runs the command batch and hands
// the collected output to a Saver.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
	"github.com/x1thexxx-lgtm/devconf/pkg/session"
	"github.com/x1thexxx-lgtm/devconf/pkg/workerpool"
)

var (
	// ErrAuthFailure means the device rejected the login credentials.
	ErrAuthFailure = errors.New("authentication failure")
	// ErrProtocol covers connection, negotiation and command failures.
	ErrProtocol = errors.New("protocol failure")
	// ErrPrivilege means enable mode could not be entered.
	ErrPrivilege = errors.New("privilege failure")
	// ErrHostname means no usable hostname could be determined.
	ErrHostname = errors.New("hostname lookup failed")
	// ErrAborted marks a device whose harvest never completed.
	ErrAborted = errors.New("harvest aborted")
)

// Saver persists the output of one device.
type Saver interface {
	Save(dev *inventory.Device, hostname string, res *inventory.HarvestResult) (string, error)
}

// HostnameResolver is consulted when the CLI does not report a hostname.
type HostnameResolver interface {
	Enabled() bool
	Hostname(ctx context.Context, addr netip.Addr) (string, error)
}

// Outcome describes how the harvest of one device ended.
type Outcome struct {
	Device   *inventory.Device
	Hostname string
	Path     string
	Commands int
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the device's output was written.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report holds one outcome per harvested device, in input order.
type Report struct {
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Succeeded returns the outcomes that produced a file.
func (r Report) Succeeded() []Outcome {
	return r.filter(true)
}

// Failed returns the outcomes that did not.
func (r Report) Failed() []Outcome {
	return r.filter(false)
}

func (r Report) filter(ok bool) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.OK() == ok {
			out = append(out, o)
		}
	}
	return out
}

// Harvester runs the command batch against devices concurrently.
type Harvester struct {
	cfg      *config.Config
	dialer   session.Dialer
	saver    Saver
	resolver HostnameResolver
	logger   *logging.Logger
}

// New creates a harvester. resolver may be nil.
func New(cfg *config.Config, dialer session.Dialer, saver Saver, resolver HostnameResolver, logger *logging.Logger) *Harvester {
	return &Harvester{cfg: cfg, dialer: dialer, saver: saver, resolver: resolver, logger: logger}
}

// Run harvests every device with the configured number of workers and returns
// once all of them have finished.
func (h *Harvester) Run(ctx context.Context, devices []*inventory.Device) Report {
	start := time.Now()
	sink := make(chan Outcome, len(devices))
	h.logger.Infof("harvesting %d commands from %d devices with %d workers",
		len(h.cfg.Commands), len(devices), h.cfg.Workers)

	stats := workerpool.Process(ctx, h.cfg.Workers, h.logger.With("phase", "harvest"), devices,
		func(ctx context.Context, dev *inventory.Device) error {
			out, _ := h.Harvest(ctx, dev)
			sink <- out
			return nil
		})
	close(sink)

	byDevice := make(map[*inventory.Device]Outcome, len(devices))
	for out := range sink {
		byDevice[out.Device] = out
	}
	report := Report{Outcomes: make([]Outcome, 0, len(devices))}
	for _, dev := range devices {
		out, ok := byDevice[dev]
		if !ok {
			out = Outcome{Device: dev, Err: fmt.Errorf("%s: %w", dev, ErrAborted)}
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	report.Elapsed = time.Since(start)

	if stats.Panicked > 0 {
		h.logger.Errorf("%d harvests panicked", stats.Panicked)
	}
	h.logger.Infof("harvest finished: %d saved, %d failed in %s",
		len(report.Succeeded()), len(report.Failed()), report.Elapsed.Round(time.Millisecond))
	return report
}

// Harvest collects the hostname and the full command batch from one device and saves
// it. Nothing is written unless every command succeeded.
func (h *Harvester) Harvest(ctx context.Context, dev *inventory.Device) (Outcome, error) {
	start := time.Now()
	log := h.logger.With("device", dev.String())
	out := Outcome{Device: dev}
	fail := func(err error) (Outcome, error) {
		out.Err = err
		out.Elapsed = time.Since(start)
		log.Errorf("%v", err)
		return out, err
	}

	log.Infof("connecting")
	sess, err := h.dialer.Dial(ctx, session.TargetFor(h.cfg, dev))
	if err != nil {
		return fail(fmt.Errorf("%s: %w", dev, classify(err)))
	}
	defer sess.Close()

	if dev.EnablePassword != "" {
		if err := sess.Enable(ctx, dev.EnablePassword); err != nil {
			return fail(fmt.Errorf("%s: %w", dev, classify(err)))
		}
	}

	hostname, err := h.hostname(ctx, sess, dev)
	if err != nil {
		return fail(err)
	}
	out.Hostname = hostname
	log.Debugf("hostname %s", hostname)

	res := inventory.NewHarvestResult()
	for _, command := range h.cfg.Commands {
		log.Debugf("running %q", command)
		text, err := sess.Execute(ctx, command)
		if err != nil {
			return fail(fmt.Errorf("%s: command %q: %w", dev, command, classify(err)))
		}
		res.Set(command, text)
	}
	out.Commands = res.Len()

	if err := sess.Close(); err != nil {
		log.Debugf("close: %v", err)
	}

	path, err := h.saver.Save(dev, hostname, res)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", dev, err))
	}
	out.Path = path
	out.Elapsed = time.Since(start)
	log.Infof("saved %d commands to %s", out.Commands, path)
	return out, nil
}

func (h *Harvester) hostname(ctx context.Context, sess session.Session, dev *inventory.Device) (string, error) {
	text, err := sess.Execute(ctx, h.cfg.HostnameCommand)
	if err != nil {
		return "", fmt.Errorf("%s: command %q: %w", dev, h.cfg.HostnameCommand, classify(err))
	}
	if name, ok := inventory.ParseHostname(text); ok {
		return name, nil
	}
	if h.resolver == nil || !h.resolver.Enabled() {
		return "", fmt.Errorf("%s: %w: no hostname in %q output", dev, ErrHostname, h.cfg.HostnameCommand)
	}
	h.logger.With("device", dev.String()).Warnf("no hostname in CLI output, asking SNMP")
	name, err := h.resolver.Hostname(ctx, dev.Address)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", dev, ErrHostname, err)
	}
	return name, nil
}

// classify maps a session error onto the harvest failure classes.
func classify(err error) error {
	switch {
	case errors.Is(err, session.ErrAuth):
		return fmt.Errorf("%w: %w", ErrAuthFailure, err)
	case errors.Is(err, session.ErrPrivilege):
		return fmt.Errorf("%w: %w", ErrPrivilege, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrAborted, err)
	default:
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
}
