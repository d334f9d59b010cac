// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/profile-viewer/gecko"
	"go.opentelemetry.io/profile-viewer/internal/profilefile"
)

type upgradeCmd struct {
	out io.Writer

	// User-specified command line arguments.
	output string
	indent bool
}

func newUpgradeCmd(out io.Writer) *ffcli.Command {
	cmd := upgradeCmd{out: out}
	set := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	set.StringVar(&cmd.output, "o", "", "Write the upgraded profile to this file instead of stdout")
	set.BoolVar(&cmd.indent, "indent", false, "Indent the JSON output")
	return &ffcli.Command{
		Name:       "upgrade",
		ShortUsage: "upgrade [flags] <profile>",
		ShortHelp:  "Upgrade a gecko profile to the current format version",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *upgradeCmd) exec(_ context.Context, args []string) (err error) {
	path, err := profileArg(args)
	if err != nil {
		return err
	}
	raw, err := profilefile.ReadRaw(path)
	if err != nil {
		return err
	}
	from, err := gecko.Version(raw)
	if err != nil {
		return err
	}
	if err = gecko.Upgrade(raw); err != nil {
		return fmt.Errorf("failed to upgrade %s: %w", path, err)
	}
	log.Infof("Upgraded %s from version %d to %d", path, from, gecko.CurrentVersion)

	w := cmd.out
	if cmd.output != "" {
		f, createErr := os.Create(cmd.output)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	if cmd.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(raw)
}
