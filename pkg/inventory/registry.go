package inventory

import (
	"net/netip"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
)

// Registry is the immutable set of devices for one run.
type Registry struct {
	devices []*Device
}

// NewRegistry builds one Device per distinct address, in input order, sharing the
// configured device type and credentials.
func NewRegistry(addrs []netip.Addr, cfg *config.Config) *Registry {
	seen := make(map[netip.Addr]struct{}, len(addrs))
	r := &Registry{devices: make([]*Device, 0, len(addrs))}
	for _, addr := range addrs {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		r.devices = append(r.devices, &Device{
			Address:        addr,
			DeviceType:     cfg.DeviceType,
			Username:       cfg.Credentials.Username,
			Password:       cfg.Credentials.Password,
			EnablePassword: cfg.Credentials.EnablePassword,
		})
	}
	return r
}

// Devices returns the registered devices. The slice is a copy; the devices are shared.
func (r *Registry) Devices() []*Device {
	out := make([]*Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len reports how many devices are registered.
func (r *Registry) Len() int {
	return len(r.devices)
}
