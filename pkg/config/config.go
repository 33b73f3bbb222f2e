package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported device-type tags. The tag selects the management protocol.
const (
	DeviceTypeIOS       = "cisco_ios"
	DeviceTypeIOSTelnet = "cisco_ios_telnet"
)

// Config represents the harvester configuration file.
type Config struct {
	Workers         int             `mapstructure:"workers" yaml:"workers"`
	DeviceType      string          `mapstructure:"device_type" yaml:"device_type"`
	Credentials     Credentials     `mapstructure:"credentials" yaml:"credentials"`
	Commands        []string        `mapstructure:"commands" yaml:"commands"`
	HostnameCommand string          `mapstructure:"hostname_command" yaml:"hostname_command"`
	Timeouts        Timeouts        `mapstructure:"timeouts" yaml:"timeouts"`
	Ports           Ports           `mapstructure:"ports" yaml:"ports"`
	Input           InputConfig     `mapstructure:"input" yaml:"input"`
	Output          OutputConfig    `mapstructure:"output" yaml:"output"`
	SNMP            SNMPConfig      `mapstructure:"snmp" yaml:"snmp"`
	Scheduler       SchedulerConfig `mapstructure:"schedule" yaml:"schedule"`
	Logging         LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// Credentials are shared by every device in a run.
type Credentials struct {
	Username       string `mapstructure:"username" yaml:"username"`
	Password       string `mapstructure:"password" yaml:"password"`
	EnablePassword string `mapstructure:"enable_password" yaml:"enable_password"`
}

// Timeouts bound the protocol client. A hung device holds one worker at most this long per step.
type Timeouts struct {
	ConnectMS int `mapstructure:"connect_ms" yaml:"connect_ms"`
	CommandMS int `mapstructure:"command_ms" yaml:"command_ms"`
}

// Connect returns the dial + login timeout.
func (t Timeouts) Connect() time.Duration {
	return time.Duration(t.ConnectMS) * time.Millisecond
}

// Command returns the per-command read timeout.
func (t Timeouts) Command() time.Duration {
	return time.Duration(t.CommandMS) * time.Millisecond
}

// Ports overrides the well-known management ports.
type Ports struct {
	SSH    int `mapstructure:"ssh" yaml:"ssh"`
	Telnet int `mapstructure:"telnet" yaml:"telnet"`
}

// InputConfig controls where address lists are looked up.
type InputConfig struct {
	Dir        string   `mapstructure:"dir" yaml:"dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// OutputConfig controls where per-run result directories are created.
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// SNMPConfig enables the sysName fallback used when the hostname command yields nothing.
type SNMPConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Community string `mapstructure:"community" yaml:"community"`
	Port      int    `mapstructure:"port" yaml:"port"`
	TimeoutMS int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// SchedulerConfig configures periodic re-runs.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Tick    string `mapstructure:"tick" yaml:"tick"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers:         3,
		DeviceType:      DeviceTypeIOS,
		Commands:        []string{"show run", "show version"},
		HostnameCommand: "show run | inc hostname",
		Timeouts:        Timeouts{ConnectMS: 10000, CommandMS: 60000},
		Ports:           Ports{SSH: 22, Telnet: 23},
		Input:           InputConfig{Dir: ".", Extensions: []string{".csv", ".txt"}},
		Output:          OutputConfig{BaseDir: "."},
		SNMP:            SNMPConfig{Community: "public", Port: 161, TimeoutMS: 2000},
		Scheduler:       SchedulerConfig{Tick: "24h"},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

const maxPort = 65535

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	switch c.DeviceType {
	case DeviceTypeIOS, DeviceTypeIOSTelnet:
	default:
		return fmt.Errorf("unsupported device_type %q", c.DeviceType)
	}
	if c.Credentials.Username == "" {
		return fmt.Errorf("credentials.username is required")
	}
	if len(c.Commands) == 0 {
		return fmt.Errorf("commands must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Commands))
	for i, cmd := range c.Commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			return fmt.Errorf("commands[%d] is blank", i)
		}
		if _, dup := seen[cmd]; dup {
			return fmt.Errorf("command %q listed twice", cmd)
		}
		seen[cmd] = struct{}{}
		c.Commands[i] = cmd
	}
	if strings.TrimSpace(c.HostnameCommand) == "" {
		return fmt.Errorf("hostname_command is required")
	}
	if c.Timeouts.ConnectMS <= 0 || c.Timeouts.CommandMS <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	for name, port := range map[string]int{"ports.ssh": c.Ports.SSH, "ports.telnet": c.Ports.Telnet, "snmp.port": c.SNMP.Port} {
		if port < 1 || port > maxPort {
			return fmt.Errorf("%s must be between 1 and %d, got %d", name, maxPort, port)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported logging.format %q", c.Logging.Format)
	}
	if c.Scheduler.Enabled {
		if _, err := time.ParseDuration(c.Scheduler.Tick); err != nil {
			return fmt.Errorf("invalid schedule.tick: %w", err)
		}
	}
	return nil
}

// Port returns the management port for the configured device type.
func (c *Config) Port() int {
	if c.DeviceType == DeviceTypeIOSTelnet {
		return c.Ports.Telnet
	}
	return c.Ports.SSH
}

// Protocol names the management protocol for the configured device type.
func (c *Config) Protocol() string {
	if c.DeviceType == DeviceTypeIOSTelnet {
		return "telnet"
	}
	return "ssh"
}
