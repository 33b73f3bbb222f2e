package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/runner"
	"github.com/x1thexxx-lgtm/devconf/pkg/scheduler"
)

func addRunFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "address list (default: pick a .csv/.txt file from input.dir)")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "base directory for results")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "number of concurrent device sessions")
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest configuration from every reachable device (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func newFilesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List candidate address files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			files, err := inventory.FindAddressFiles(cfg.Input.Dir, cfg.Input.Extensions)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

func runHarvest(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	input, err := chooseInput(cfg, opts.input)
	if errors.Is(err, inventory.ErrNoInputFiles) {
		pterm.Warning.Println(err.Error())
		return err
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(cfg, runner.Deps{Input: input}, logger)
	if cfg.Scheduler.Enabled {
		scheduler.New(cfg.Scheduler, r, logger.With("component", "scheduler")).Start(ctx)
		return nil
	}

	sum, err := r.Execute(ctx)
	switch {
	case errors.Is(err, runner.ErrEmptyDeviceList):
		pterm.Warning.Println(err.Error())
		return err
	case errors.Is(err, context.Canceled):
		pterm.Warning.Println("interrupted")
		return err
	case err != nil:
		return err
	}
	return printSummary(sum)
}

// chooseInput returns the explicit input, the only candidate file, or asks the user
// to pick one when stdin is a terminal.
func chooseInput(cfg *config.Config, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	files, err := inventory.FindAddressFiles(cfg.Input.Dir, cfg.Input.Extensions)
	if err != nil {
		return "", err
	}
	if len(files) == 1 {
		return files[0], nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%d address files in %s, choose one with --input", len(files), cfg.Input.Dir)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	choice, err := pterm.DefaultInteractiveSelect.
		WithDefaultText("Select the address list").
		WithOptions(names).
		Show()
	if err != nil {
		return "", fmt.Errorf("select input: %w", err)
	}
	for i, name := range names {
		if name == choice {
			return files[i], nil
		}
	}
	return "", fmt.Errorf("select input: unknown choice %q", choice)
}

func printSummary(sum *runner.Summary) error {
	rows := pterm.TableData{{"Device", "Hostname", "File", "Result", "Elapsed"}}
	for _, out := range sum.Report.Outcomes {
		result, file := "saved", ""
		if out.Err != nil {
			result = out.Err.Error()
		}
		if out.Path != "" {
			file = filepath.Base(out.Path)
		}
		rows = append(rows, []string{
			out.Device.String(),
			out.Hostname,
			file,
			result,
			out.Elapsed.Round(time.Millisecond).String(),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader(true).WithBoxed(false).WithData(rows).Render(); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	pterm.Success.Printfln("%d of %d reachable devices saved to %s (%d unreachable, %s)",
		len(sum.Report.Succeeded()), sum.Reachable, sum.RunDir, sum.Devices-sum.Reachable,
		sum.Elapsed.Round(time.Millisecond))
	return nil
}
