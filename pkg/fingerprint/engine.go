// Package fingerprint identifies a device by asking it over SNMP.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

// ErrDisabled is returned when SNMP lookups are turned off.
var ErrDisabled = errors.New("snmp lookup disabled")

// ErrNoName is returned when the agent answers without a usable sysName.
var ErrNoName = errors.New("no sysName reported")

const oidSysName = ".1.3.6.1.2.1.1.5.0"

// Getter performs one SNMP GET. It exists so tests can answer without an agent.
type Getter func(ctx context.Context, target netip.Addr, oids []string) (*gosnmp.SnmpPacket, error)

// Resolver looks up a device's configured name.
type Resolver struct {
	cfg    config.SNMPConfig
	get    Getter
	logger *logging.Logger
}

// NewResolver creates a resolver that queries sysName.0 over SNMP v2c.
func NewResolver(cfg config.SNMPConfig, logger *logging.Logger) *Resolver {
	r := &Resolver{cfg: cfg, logger: logger}
	r.get = r.snmpGet
	return r
}

// WithGetter replaces the SNMP transport.
func (r *Resolver) WithGetter(get Getter) *Resolver {
	r.get = get
	return r
}

// Enabled reports whether lookups will be attempted.
func (r *Resolver) Enabled() bool {
	return r != nil && r.cfg.Enabled
}

// Hostname returns the device's sysName with any domain suffix removed.
func (r *Resolver) Hostname(ctx context.Context, addr netip.Addr) (string, error) {
	if !r.Enabled() {
		return "", ErrDisabled
	}
	pkt, err := r.get(ctx, addr, []string{oidSysName})
	if err != nil {
		return "", fmt.Errorf("snmp get %s: %w", addr, err)
	}
	for _, variable := range pkt.Variables {
		if variable.Name != oidSysName {
			continue
		}
		raw, ok := variable.Value.([]byte)
		if !ok {
			break
		}
		name := string(raw)
		if i := strings.IndexByte(name, '.'); i > 0 {
			name = name[:i]
		}
		name = inventory.NormalizeHostname(name)
		if name == "" {
			break
		}
		r.logger.Debugf("[SNMP] %s sysName %s", addr, name)
		return name, nil
	}
	return "", fmt.Errorf("%s: %w", addr, ErrNoName)
}

func (r *Resolver) snmpGet(ctx context.Context, target netip.Addr, oids []string) (*gosnmp.SnmpPacket, error) {
	snmp := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    target.String(),
		Port:      uint16(r.cfg.Port),
		Community: r.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   time.Duration(r.cfg.TimeoutMS) * time.Millisecond,
		Retries:   1,
	}
	if err := snmp.Connect(); err != nil {
		return nil, err
	}
	defer snmp.Conn.Close()
	return snmp.Get(oids)
}
