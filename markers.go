// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/peterbourgon/ff/v3/ffcli"

	"go.opentelemetry.io/profile-viewer/internal/config"
	"go.opentelemetry.io/profile-viewer/markers"
)

type markersCmd struct {
	cfg *config.Config
	out io.Writer

	// User-specified command line arguments.
	view viewFlags
	jank bool
}

func newMarkersCmd(cfg *config.Config, out io.Writer) *ffcli.Command {
	cmd := markersCmd{cfg: cfg, out: out}
	set := flag.NewFlagSet("markers", flag.ContinueOnError)
	cmd.view.register(set)
	set.BoolVar(&cmd.jank, "jank", true, "Also print the jank instances of the thread")
	return &ffcli.Command{
		Name:       "markers",
		ShortUsage: "markers [flags] <profile>",
		ShortHelp:  "Print the marker chart lanes of a thread",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *markersCmd) exec(_ context.Context, args []string) error {
	path, err := profileArg(args)
	if err != nil {
		return err
	}
	params, err := cmd.view.params()
	if err != nil {
		return usageError("%v", err)
	}
	session, err := openSession(cmd.cfg, path)
	if err != nil {
		return err
	}
	thread, err := cmd.view.threadIndex(session.Profile())
	if err != nil {
		return err
	}
	lanes, err := session.MarkerTiming(thread, params)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(cmd.out)
	for lane, row := range lanes {
		for i := 0; i < row.Length; i++ {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", lane, row.Name,
				formatTime(row.Start[i]), formatTime(row.End[i]), row.Label[i])
		}
	}
	if cmd.jank {
		jank, err := session.JankInstances(thread, params, cmd.cfg.JankThreshold)
		if err != nil {
			return err
		}
		for _, m := range jank {
			fmt.Fprintf(w, "-\t%s\t%s\t%s\t%s\n", m.Name, formatTime(m.Start),
				formatTime(m.End()), markers.Description(m))
		}
	}
	return w.Flush()
}
