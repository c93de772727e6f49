// Command emissionctl operates the sulfur emission compliance ledger:
// vessel registration, emission recording, notice inspection, evidence
// export and verification.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/audit"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/authz"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/config"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Exit codes. Every ledger rejection kind has its own code.
const (
	exitOK                 = 0
	exitFailure            = 1
	exitUsage              = 2
	exitInvalidInput       = 3
	exitUnregisteredVessel = 4
	exitNotVesselOwner     = 5
	exitNotAuthorizedFiler = 6
	exitNotAdministrator   = 7
	exitVesselNotFound     = 8
	exitVerifyFailed       = 9
)

// usageError marks errors caused by how the command was invoked.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// Run is the entrypoint for testing.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := newCLI(stdout, stderr)
	root := newRootCmd(c)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := c.close(context.WithoutCancel(ctx)); cerr != nil {
		_, _ = fmt.Fprintf(stderr, "Error: shutdown: %v\n", cerr)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage), errors.Is(err, config.ErrInvalidConfig),
		strings.HasPrefix(err.Error(), "unknown command"):
		return exitUsage
	}

	switch contracts.KindOf(err) {
	case contracts.ErrInvalidInput:
		return exitInvalidInput
	case contracts.ErrUnregisteredVessel:
		return exitUnregisteredVessel
	case contracts.ErrNotVesselOwner:
		return exitNotVesselOwner
	case contracts.ErrNotAuthorizedFiler:
		return exitNotAuthorizedFiler
	case contracts.ErrNotAdministrator:
		return exitNotAdministrator
	case contracts.ErrVesselNotFound:
		return exitVesselNotFound
	case contracts.ErrChainBroken:
		return exitVerifyFailed
	}

	switch {
	case errors.Is(err, authz.ErrAdminMismatch):
		return exitNotAdministrator
	case errors.Is(err, audit.ErrChecksumMismatch),
		errors.Is(err, audit.ErrUnsupportedFormat),
		errors.Is(err, audit.ErrMalformedBundle):
		return exitVerifyFailed
	}
	return exitFailure
}
