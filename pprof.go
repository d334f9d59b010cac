// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/profile-viewer/internal/config"
	"go.opentelemetry.io/profile-viewer/pprofexport"
)

type pprofCmd struct {
	cfg *config.Config
	out io.Writer

	// User-specified command line arguments.
	view   viewFlags
	output string
}

func newPprofCmd(cfg *config.Config, out io.Writer) *ffcli.Command {
	cmd := pprofCmd{cfg: cfg, out: out}
	set := flag.NewFlagSet("pprof", flag.ContinueOnError)
	cmd.view.register(set)
	set.StringVar(&cmd.output, "o", "", "Output file, stdout if empty")
	return &ffcli.Command{
		Name:       "pprof",
		ShortUsage: "pprof [flags] <profile>",
		ShortHelp:  "Export the filtered samples of a thread in pprof format",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *pprofCmd) exec(_ context.Context, args []string) (err error) {
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
	th, err := session.PreviewFilteredThread(thread, params)
	if err != nil {
		return err
	}

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
	if err = pprofexport.Write(w, th, session.Profile().Meta); err != nil {
		return err
	}
	log.Infof("Exported %d samples of thread %d", th.Samples.Length, thread)
	return nil
}
