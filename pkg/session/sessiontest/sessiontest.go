// Package sessiontest provides an in-memory session.Dialer for tests.
package sessiontest

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/session"
)

// HostnameCommand is answered with "hostname <Hostname>" unless Outputs overrides it.
const HostnameCommand = "show run | inc hostname"

// Device scripts how one fake device behaves.
type Device struct {
	Hostname  string
	DialErr   error
	EnableErr error
	Outputs   map[string]string
	Fail      map[string]error
	Delay     time.Duration
	PanicDial bool
}

// Dialer hands out fake sessions for registered addresses. Unknown addresses fail
// with session.ErrConnect.
type Dialer struct {
	mu       sync.Mutex
	devices  map[netip.Addr]*Device
	dials    map[netip.Addr]int
	executed map[netip.Addr][]string
	open     int
	peak     int
}

// NewDialer returns an empty dialer.
func NewDialer() *Dialer {
	return &Dialer{
		devices:  map[netip.Addr]*Device{},
		dials:    map[netip.Addr]int{},
		executed: map[netip.Addr][]string{},
	}
}

// Add registers a device under addr.
func (d *Dialer) Add(addr string, dev *Device) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[netip.MustParseAddr(addr)] = dev
	return d
}

// Dial implements session.Dialer.
func (d *Dialer) Dial(ctx context.Context, t session.Target) (session.Session, error) {
	d.mu.Lock()
	d.dials[t.Address]++
	dev, ok := d.devices[t.Address]
	d.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s: no route to host", session.ErrConnect, t.Address)
	}
	if dev.PanicDial {
		panic(fmt.Sprintf("dial %s", t.Address))
	}
	if dev.Delay > 0 {
		select {
		case <-time.After(dev.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dev.DialErr != nil {
		return nil, dev.DialErr
	}

	d.mu.Lock()
	d.open++
	if d.open > d.peak {
		d.peak = d.open
	}
	d.mu.Unlock()
	return &fakeSession{dialer: d, addr: t.Address, dev: dev}, nil
}

// Dials reports how many times addr was dialled.
func (d *Dialer) Dials(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[netip.MustParseAddr(addr)]
}

// Executed lists the commands run against addr, in order.
func (d *Dialer) Executed(addr string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed[netip.MustParseAddr(addr)]...)
}

// Open reports sessions not yet closed.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Peak reports the most sessions open at once.
func (d *Dialer) Peak() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

type fakeSession struct {
	dialer *Dialer
	addr   netip.Addr
	dev    *Device
	closed bool
}

func (s *fakeSession) Enable(context.Context, string) error {
	return s.dev.EnableErr
}

func (s *fakeSession) Execute(_ context.Context, command string) (string, error) {
	s.dialer.mu.Lock()
	s.dialer.executed[s.addr] = append(s.dialer.executed[s.addr], command)
	s.dialer.mu.Unlock()

	if err := s.dev.Fail[command]; err != nil {
		return "", err
	}
	if out, ok := s.dev.Outputs[command]; ok {
		return out, nil
	}
	if command == HostnameCommand {
		return "hostname " + s.dev.Hostname, nil
	}
	return fmt.Sprintf("%s output from %s", command, s.dev.Hostname), nil
}

func (s *fakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.dialer.mu.Lock()
	s.dialer.open--
	s.dialer.mu.Unlock()
	return nil
}
