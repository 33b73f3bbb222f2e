package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/runner"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("devices.txt: %w", runner.ErrEmptyDeviceList)))
	assert.Equal(t, 0, exitCode(fmt.Errorf("/tmp: %w", inventory.ErrNoInputFiles)))
	assert.Equal(t, 1, exitCode(errors.New("validate config: workers must be at least 1")))
}

func TestRunWithoutInputFilesExitsCleanly(t *testing.T) {
	t.Setenv("DEVCONF_USERNAME", "admin")
	t.Setenv("DEVCONF_INPUT_DIR", t.TempDir())

	root := newRootCmd()
	root.SetArgs([]string{"run"})
	err := root.Execute()

	assert.True(t, errors.Is(err, inventory.ErrNoInputFiles), "got %v", err)
	assert.Equal(t, 0, exitCode(err))
}
