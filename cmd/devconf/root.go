package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

const defaultConfigFile = "devconf.yaml"

type options struct {
	configPath string
	logLevel   string
	input      string
	outputDir  string
	workers    int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "devconf",
		Short:         "Collect running configuration from Cisco IOS devices",
		Long:          "devconf reads a list of management addresses, drops the devices that do not answer\nover SSH or Telnet and saves the output of a command batch from every other device\ninto a timestamped results directory, one file per hostname.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigFile, "path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	addRunFlags(root, opts)

	root.AddCommand(newRunCmd(opts), newFilesCmd(opts), newConfigCmd(opts), newVersionCmd())
	return root
}

// loadConfig loads the config file; the default file is optional, an explicit one is not.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	path := opts.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.outputDir != "" {
		cfg.Output.BaseDir = opts.outputDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return logger, nil
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return config.Render(cmd.OutOrStdout(), cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "devconf", version)
		},
	}
}
