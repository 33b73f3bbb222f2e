package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/x1thexxx-lgtm/devconf/pkg/inventory"
	"github.com/x1thexxx-lgtm/devconf/pkg/runner"
)

var version = "dev"

func main() {
	err := newRootCmd().Execute()
	code := exitCode(err)
	if code != 0 {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(code)
}

// exitCode treats "nothing to do" conditions as a clean exit; they are reported
// before the command returns.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, runner.ErrEmptyDeviceList), errors.Is(err, inventory.ErrNoInputFiles):
		return 0
	default:
		return 1
	}
}
