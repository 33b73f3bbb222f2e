package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
	"github.com/x1thexxx-lgtm/devconf/pkg/output"
	"github.com/x1thexxx-lgtm/devconf/pkg/session"
	"github.com/x1thexxx-lgtm/devconf/pkg/session/sessiontest"
)

type fakeResolver struct {
	enabled bool
	name    string
	err     error
	calls   int
}

func (r *fakeResolver) Enabled() bool { return r.enabled }

func (r *fakeResolver) Hostname(context.Context, netip.Addr) (string, error) {
	r.calls++
	return r.name, r.err
}

type failingSaver struct{}

func (failingSaver) Save(dev *inventory.Device, _ string, _ *inventory.HarvestResult) (string, error) {
	return "", fmt.Errorf("%w: disk full", output.ErrIO)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Credentials.Username = "admin"
	cfg.Credentials.Password = "admin"
	return &cfg
}

func devicesFor(cfg *config.Config, ips ...string) []*inventory.Device {
	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, netip.MustParseAddr(ip))
	}
	return inventory.NewRegistry(addrs, cfg).Devices()
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunSavesEveryDevice(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	dialer := sessiontest.NewDialer().
		Add("10.0.0.1", &sessiontest.Device{Hostname: "R1"}).
		Add("10.0.0.2", &sessiontest.Device{Hostname: "R2"}).
		Add("10.0.0.3", &sessiontest.Device{Hostname: "SW3"})
	devices := devicesFor(cfg, "10.0.0.1", "10.0.0.2", "10.0.0.3")

	report := New(cfg, dialer, output.NewWriter(dir, logging.Discard()), nil, logging.Discard()).
		Run(context.Background(), devices)

	require.Len(t, report.Outcomes, 3)
	assert.Len(t, report.Succeeded(), 3)
	assert.Empty(t, report.Failed())
	for i, out := range report.Outcomes {
		assert.Same(t, devices[i], out.Device)
		assert.Equal(t, 2, out.Commands)
	}
	assert.ElementsMatch(t, []string{"R1.log", "R2.log", "SW3.log"}, dirEntries(t, dir))
	assert.Zero(t, dialer.Open())

	got, err := os.ReadFile(filepath.Join(dir, "R2.log"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "show run\n")
	assert.Contains(t, string(got), "show version output from R2\n")
	assert.Equal(t, []string{sessiontest.HostnameCommand, "show run", "show version"}, dialer.Executed("10.0.0.2"))

	path, ok := devices[1].OutputPath()
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "R2.log"), path)
}

func TestHostnameFailureSkipsBatch(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Hostname: "R1",
		Outputs:  map[string]string{sessiontest.HostnameCommand: "% Invalid input detected"},
	})
	dev := devicesFor(cfg, "10.0.0.1")[0]

	out, err := New(cfg, dialer, output.NewWriter(dir, logging.Discard()), nil, logging.Discard()).
		Harvest(context.Background(), dev)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHostname))
	assert.Equal(t, err, out.Err)
	assert.Equal(t, []string{sessiontest.HostnameCommand}, dialer.Executed("10.0.0.1"))
	assert.Empty(t, dirEntries(t, dir))
	assert.Zero(t, dialer.Open())
}

func TestHostnameCommandErrorIsProtocolFailure(t *testing.T) {
	cfg := testConfig()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Fail: map[string]error{sessiontest.HostnameCommand: fmt.Errorf("%w: no prompt", session.ErrTimeout)},
	})
	_, err := New(cfg, dialer, output.NewWriter(t.TempDir(), logging.Discard()), nil, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.True(t, errors.Is(err, session.ErrTimeout))
}

func TestMidBatchFailureWritesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Commands = []string{"show run", "show version", "show clock"}
	dir := t.TempDir()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Hostname: "R1",
		Fail:     map[string]error{"show version": fmt.Errorf("%w: connection reset", session.ErrProtocol)},
	})
	dev := devicesFor(cfg, "10.0.0.1")[0]

	_, err := New(cfg, dialer, output.NewWriter(dir, logging.Discard()), nil, logging.Discard()).
		Harvest(context.Background(), dev)

	assert.True(t, errors.Is(err, ErrProtocol))
	assert.Contains(t, err.Error(), `"show version"`)
	assert.Equal(t, []string{sessiontest.HostnameCommand, "show run", "show version"}, dialer.Executed("10.0.0.1"))
	assert.Empty(t, dirEntries(t, dir))
	_, assigned := dev.OutputPath()
	assert.False(t, assigned)
	assert.Zero(t, dialer.Open())
}

func TestAuthFailure(t *testing.T) {
	cfg := testConfig()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		DialErr: fmt.Errorf("%w: permission denied", session.ErrAuth),
	})
	out, err := New(cfg, dialer, output.NewWriter(t.TempDir(), logging.Discard()), nil, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])

	assert.True(t, errors.Is(err, ErrAuthFailure))
	assert.False(t, out.OK())
	assert.Equal(t, 1, dialer.Dials("10.0.0.1"))
	assert.Empty(t, dialer.Executed("10.0.0.1"))
}

func TestEnableFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Credentials.EnablePassword = "secret"
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Hostname:  "R1",
		EnableErr: fmt.Errorf("%w: enable secret rejected", session.ErrPrivilege),
	})
	_, err := New(cfg, dialer, output.NewWriter(t.TempDir(), logging.Discard()), nil, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])

	assert.True(t, errors.Is(err, ErrPrivilege))
	assert.Empty(t, dialer.Executed("10.0.0.1"))
	assert.Zero(t, dialer.Open())
}

func TestSNMPFallbackNamesTheFile(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Hostname: "ignored",
		Outputs:  map[string]string{sessiontest.HostnameCommand: ""},
	})
	resolver := &fakeResolver{enabled: true, name: "core1"}

	out, err := New(cfg, dialer, output.NewWriter(dir, logging.Discard()), resolver, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])

	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, "core1", out.Hostname)
	assert.Equal(t, filepath.Join(dir, "core1.log"), out.Path)
	assert.FileExists(t, out.Path)
}

func TestSNMPFallbackFailure(t *testing.T) {
	cfg := testConfig()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Outputs: map[string]string{sessiontest.HostnameCommand: ""},
	})
	resolver := &fakeResolver{enabled: true, err: errors.New("request timeout")}

	_, err := New(cfg, dialer, output.NewWriter(t.TempDir(), logging.Discard()), resolver, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])
	assert.True(t, errors.Is(err, ErrHostname))
	assert.Equal(t, []string{sessiontest.HostnameCommand}, dialer.Executed("10.0.0.1"))
}

func TestDisabledResolverIsNotAsked(t *testing.T) {
	cfg := testConfig()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{
		Outputs: map[string]string{sessiontest.HostnameCommand: ""},
	})
	resolver := &fakeResolver{enabled: false, name: "core1"}

	_, err := New(cfg, dialer, output.NewWriter(t.TempDir(), logging.Discard()), resolver, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])
	assert.True(t, errors.Is(err, ErrHostname))
	assert.Zero(t, resolver.calls)
}

func TestSaveFailureIsReported(t *testing.T) {
	cfg := testConfig()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{Hostname: "R1"})
	out, err := New(cfg, dialer, failingSaver{}, nil, logging.Discard()).
		Harvest(context.Background(), devicesFor(cfg, "10.0.0.1")[0])

	assert.True(t, errors.Is(err, output.ErrIO))
	assert.Empty(t, out.Path)
	assert.Equal(t, 2, out.Commands)
}

func TestFailuresAndPanicsAreIsolated(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	dir := t.TempDir()
	dialer := sessiontest.NewDialer().
		Add("10.0.0.1", &sessiontest.Device{Hostname: "R1"}).
		Add("10.0.0.2", &sessiontest.Device{PanicDial: true}).
		Add("10.0.0.3", &sessiontest.Device{DialErr: fmt.Errorf("%w: bad password", session.ErrAuth)}).
		Add("10.0.0.4", &sessiontest.Device{Hostname: "R4"})
	devices := devicesFor(cfg, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4")

	report := New(cfg, dialer, output.NewWriter(dir, logging.Discard()), nil, logging.Discard()).
		Run(context.Background(), devices)

	require.Len(t, report.Outcomes, 4)
	assert.NoError(t, report.Outcomes[0].Err)
	assert.True(t, errors.Is(report.Outcomes[1].Err, ErrAborted))
	assert.True(t, errors.Is(report.Outcomes[2].Err, ErrAuthFailure))
	assert.NoError(t, report.Outcomes[3].Err)
	assert.ElementsMatch(t, []string{"R1.log", "R4.log"}, dirEntries(t, dir))
}

func TestCancelledRunAbortsEverything(t *testing.T) {
	cfg := testConfig()
	dialer := sessiontest.NewDialer().Add("10.0.0.1", &sessiontest.Device{Hostname: "R1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(cfg, dialer, output.NewWriter(t.TempDir(), logging.Discard()), nil, logging.Discard()).
		Run(ctx, devicesFor(cfg, "10.0.0.1"))

	require.Len(t, report.Outcomes, 1)
	assert.True(t, errors.Is(report.Outcomes[0].Err, ErrAborted))
	assert.Zero(t, dialer.Dials("10.0.0.1"))
}
