// Package discovery prunes devices that do not answer on their management protocol.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
	"github.com/x1thexxx-lgtm/devconf/pkg/session"
	"github.com/x1thexxx-lgtm/devconf/pkg/workerpool"
)

// ErrUnreachable marks a device whose reachability probe failed.
var ErrUnreachable = errors.New("device unreachable")

// ProbeResult is the outcome of one reachability probe.
type ProbeResult struct {
	Device *inventory.Device
	Err    error
}

// Filter probes devices concurrently.
type Filter struct {
	cfg    *config.Config
	dialer session.Dialer
	logger *logging.Logger
}

// NewFilter constructs a filter using the configured worker count.
func NewFilter(cfg *config.Config, dialer session.Dialer, logger *logging.Logger) *Filter {
	return &Filter{cfg: cfg, dialer: dialer, logger: logger}
}

// Reachable returns the devices whose probe succeeded, in input order.
func (f *Filter) Reachable(ctx context.Context, devices []*inventory.Device) []*inventory.Device {
	results := f.Probe(ctx, devices)
	alive := make(map[*inventory.Device]bool, len(results))
	for _, res := range results {
		if res.Err == nil {
			alive[res.Device] = true
		}
	}
	reachable := make([]*inventory.Device, 0, len(alive))
	for _, dev := range devices {
		if alive[dev] {
			reachable = append(reachable, dev)
			delete(alive, dev)
		}
	}
	f.logger.Infof("%d of %d devices reachable over %s", len(reachable), len(devices), f.cfg.Protocol())
	return reachable
}

// Probe runs one connect-and-disconnect probe per device and collects every result
// once all probes have finished.
func (f *Filter) Probe(ctx context.Context, devices []*inventory.Device) []ProbeResult {
	sink := make(chan ProbeResult, len(devices))
	f.logger.Infof("checking connections to %d devices over %s", len(devices), f.cfg.Protocol())

	stats := workerpool.Process(ctx, f.cfg.Workers, f.logger.With("phase", "filter"), devices,
		func(ctx context.Context, dev *inventory.Device) error {
			err := f.probe(ctx, dev)
			sink <- ProbeResult{Device: dev, Err: err}
			return nil
		})
	close(sink)

	results := make([]ProbeResult, 0, len(devices))
	for res := range sink {
		results = append(results, res)
	}
	if stats.Panicked > 0 {
		f.logger.Errorf("%d probes panicked; those devices are treated as unreachable", stats.Panicked)
	}
	return results
}

func (f *Filter) probe(ctx context.Context, dev *inventory.Device) error {
	log := f.logger.With("device", dev.String())
	log.Debugf("trying to connect")
	sess, err := f.dialer.Dial(ctx, session.TargetFor(f.cfg, dev))
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", dev, ErrUnreachable, err)
		log.Warnf("%v", err)
		return err
	}
	if err := sess.Close(); err != nil {
		log.Debugf("close after probe: %v", err)
	}
	log.Infof("reachable")
	return nil
}
