// Package session drives an interactive Cisco IOS CLI over SSH or Telnet.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

var (
	// ErrConnect means the management port could not be reached.
	ErrConnect = errors.New("connection failed")
	// ErrAuth means the device rejected the credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrProtocol covers negotiation failures and unexpected CLI behaviour.
	ErrProtocol = errors.New("protocol error")
	// ErrPrivilege means enable mode could not be entered.
	ErrPrivilege = errors.New("privilege elevation failed")
	// ErrTimeout means the device stopped answering before the prompt returned.
	ErrTimeout = errors.New("timed out waiting for device")
)

// Target identifies one device and the credentials used to log in.
type Target struct {
	Address    netip.Addr
	Port       int
	DeviceType string
	Username   string
	Password   string
}

func (t Target) hostPort() string {
	return net.JoinHostPort(t.Address.String(), strconv.Itoa(t.Port))
}

// TargetFor builds the login target for a registered device.
func TargetFor(cfg *config.Config, dev *inventory.Device) Target {
	port := cfg.Ports.SSH
	if dev.DeviceType == config.DeviceTypeIOSTelnet {
		port = cfg.Ports.Telnet
	}
	return Target{
		Address:    dev.Address,
		Port:       port,
		DeviceType: dev.DeviceType,
		Username:   dev.Username,
		Password:   dev.Password,
	}
}

// Session is an authenticated CLI session.
type Session interface {
	// Enable enters privileged mode. It is a no-op when the session already is.
	Enable(ctx context.Context, secret string) error
	// Execute runs one command and returns its raw output without echo and prompt.
	Execute(ctx context.Context, command string) (string, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// CLIDialer opens SSH or Telnet sessions depending on the device type.
type CLIDialer struct {
	connectTimeout time.Duration
	commandTimeout time.Duration
	logger         *logging.Logger
}

// NewDialer creates a dialer using the configured timeouts.
func NewDialer(cfg *config.Config, logger *logging.Logger) *CLIDialer {
	return &CLIDialer{
		connectTimeout: cfg.Timeouts.Connect(),
		commandTimeout: cfg.Timeouts.Command(),
		logger:         logger,
	}
}

// Dial connects, logs in, learns the prompt and disables paging.
func (d *CLIDialer) Dial(ctx context.Context, target Target) (Session, error) {
	switch target.DeviceType {
	case config.DeviceTypeIOS:
		return d.dialSSH(ctx, target)
	case config.DeviceTypeIOSTelnet:
		return d.dialTelnet(ctx, target)
	default:
		return nil, fmt.Errorf("%w: unsupported device type %q", ErrProtocol, target.DeviceType)
	}
}
