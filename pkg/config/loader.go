package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DEVCONF_CREDENTIALS_PASSWORD.
const EnvPrefix = "DEVCONF"

// DotEnvFile is read before the environment is consulted, if present.
var DotEnvFile = ".env"

const masked = "********"

// Load reads YAML/JSON configuration from path, applies defaults and DEVCONF_*
// environment overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", DotEnvFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("workers", d.Workers)
	v.SetDefault("device_type", d.DeviceType)
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("credentials.enable_password", "")
	v.SetDefault("commands", d.Commands)
	v.SetDefault("hostname_command", d.HostnameCommand)
	v.SetDefault("timeouts.connect_ms", d.Timeouts.ConnectMS)
	v.SetDefault("timeouts.command_ms", d.Timeouts.CommandMS)
	v.SetDefault("ports.ssh", d.Ports.SSH)
	v.SetDefault("ports.telnet", d.Ports.Telnet)
	v.SetDefault("input.dir", d.Input.Dir)
	v.SetDefault("input.extensions", d.Input.Extensions)
	v.SetDefault("output.base_dir", d.Output.BaseDir)
	v.SetDefault("snmp.enabled", d.SNMP.Enabled)
	v.SetDefault("snmp.community", d.SNMP.Community)
	v.SetDefault("snmp.port", d.SNMP.Port)
	v.SetDefault("snmp.timeout_ms", d.SNMP.TimeoutMS)
	v.SetDefault("schedule.enabled", d.Scheduler.Enabled)
	v.SetDefault("schedule.tick", d.Scheduler.Tick)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// Short aliases for the values most often kept out of config files.
func bindEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("credentials.username", EnvPrefix+"_CREDENTIALS_USERNAME", EnvPrefix+"_USERNAME")
	_ = v.BindEnv("credentials.password", EnvPrefix+"_CREDENTIALS_PASSWORD", EnvPrefix+"_PASSWORD")
	_ = v.BindEnv("credentials.enable_password", EnvPrefix+"_CREDENTIALS_ENABLE_PASSWORD", EnvPrefix+"_ENABLE_PASSWORD")
	_ = v.BindEnv("snmp.community", EnvPrefix+"_SNMP_COMMUNITY")
}

// Render writes the effective configuration as YAML with secrets masked.
func Render(w io.Writer, cfg *Config) error {
	out := *cfg
	out.Credentials.Password = mask(out.Credentials.Password)
	out.Credentials.EnablePassword = mask(out.Credentials.EnablePassword)
	out.SNMP.Community = mask(out.SNMP.Community)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	return enc.Close()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return masked
}
