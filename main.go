// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// profview loads captured execution profiles and prints the views of the
// profile viewer: call trees, stack charts, marker lanes and pprof exports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/profile-viewer/internal/config"
	"go.opentelemetry.io/profile-viewer/internal/profilefile"
	"go.opentelemetry.io/profile-viewer/metrics"
	"go.opentelemetry.io/profile-viewer/profileview"
	"go.opentelemetry.io/profile-viewer/vc"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode(os.Args[1:], os.Stdout)))
}

func newRootCmd(cfg *config.Config, out io.Writer) *ffcli.Command {
	return &ffcli.Command{
		Name:       "profview",
		ShortUsage: "profview [flags] <subcommand> [flags] <profile>",
		ShortHelp:  "Inspect captured execution profiles",
		FlagSet:    newRootFlagSet(cfg),
		Options:    ffOptions,
		Subcommands: []*ffcli.Command{
			newUpgradeCmd(out),
			newCallTreeCmd(cfg, out),
			newFlameGraphCmd(cfg, out),
			newMarkersCmd(cfg, out),
			newPprofCmd(cfg, out),
			newSymbolicateCmd(cfg, out),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

func mainWithExitCode(args []string, out io.Writer) exitCode {
	var cfg config.Config
	root := newRootCmd(&cfg, out)
	if err := root.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}

	if cfg.Version {
		fmt.Fprintln(out, vc.String())
		return exitSuccess
	}

	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		cfg.Dump()
	}

	if err := cfg.Validate(); err != nil {
		return parseError("%v", err)
	}

	mainCtx, mainCancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM)
	defer mainCancel()

	if err := root.Run(mainCtx); err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return exitParseError
		case errors.Is(err, errUsage):
			return parseError("%v", err)
		case errors.Is(err, context.Canceled):
			return failure("Interrupted")
		default:
			return failure("%v", err)
		}
	}

	if cfg.Verbose {
		dumpMetrics()
	}
	return exitSuccess
}

// errUsage marks errors caused by wrong command line arguments.
var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// profileArg returns the single profile path of a subcommand.
func profileArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("expected exactly one profile file, got %d arguments", len(args))
	}
	return args[0], nil
}

// openSession loads the profile at path into a new session.
func openSession(cfg *config.Config, path string) (*profileview.Session, error) {
	p, err := profilefile.Load(path)
	if err != nil {
		return nil, err
	}
	return profileview.New(p, uint32(cfg.CacheSize))
}

// formatTime prints a time in milliseconds without losing precision.
func formatTime(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}

func dumpMetrics() {
	snapshot := metrics.Snapshot()
	ids := make([]metrics.MetricID, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		log.Debugf("metric %s: %d", metrics.NameOf(id), snapshot[id])
	}
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
