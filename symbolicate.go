// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/profile-viewer/internal/config"
	"go.opentelemetry.io/profile-viewer/internal/periodiccaller"
	"go.opentelemetry.io/profile-viewer/symbolication"
	"go.opentelemetry.io/profile-viewer/symbolstore"
)

type symbolicateCmd struct {
	cfg *config.Config
	out io.Writer

	// User-specified command line arguments.
	view       viewFlags
	imports    string
	upload     bool
	importOnly bool
}

func newSymbolicateCmd(cfg *config.Config, out io.Writer) *ffcli.Command {
	cmd := symbolicateCmd{cfg: cfg, out: out}
	set := flag.NewFlagSet("symbolicate", flag.ContinueOnError)
	cmd.view.register(set)
	set.StringVar(&cmd.imports, "import", "",
		"Comma separated Breakpad symbol files to add to the symbol store first")
	set.BoolVar(&cmd.upload, "upload", false, "Upload imported symbol tables to -s3-bucket")
	set.BoolVar(&cmd.importOnly, "import-only", false,
		"Only import symbol files, no profile argument is expected")
	return &ffcli.Command{
		Name:       "symbolicate",
		ShortUsage: "symbolicate [flags] <profile>",
		ShortHelp:  "Resolve native addresses from the symbol store and print the call tree",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *symbolicateCmd) symbolStore(ctx context.Context) (*symbolstore.Store, error) {
	if cmd.cfg.SymbolDir == "" {
		return nil, usageError("symbolicate requires -symbol-dir")
	}
	var opts []symbolstore.Option
	if cmd.cfg.S3Bucket != "" {
		client, err := symbolstore.NewS3Client(ctx, cmd.cfg.S3Region, cmd.cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		opts = append(opts, symbolstore.WithRemote(client, cmd.cfg.S3Bucket))
	}
	return symbolstore.New(cmd.cfg.SymbolDir, opts...)
}

func (cmd *symbolicateCmd) importSymbols(ctx context.Context, store *symbolstore.Store) error {
	if cmd.imports == "" {
		return nil
	}
	for _, path := range strings.Split(cmd.imports, ",") {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		debugName, breakpadID, err := store.ImportBreakpad(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		log.Infof("Imported symbols of %s/%s", debugName, breakpadID)
		if cmd.upload {
			if err = store.Upload(ctx, debugName, breakpadID); err != nil {
				return err
			}
			log.Infof("Uploaded symbols of %s/%s", debugName, breakpadID)
		}
	}
	return nil
}

func (cmd *symbolicateCmd) exec(ctx context.Context, args []string) error {
	if cmd.upload && cmd.cfg.S3Bucket == "" {
		return usageError("-upload requires -s3-bucket")
	}
	store, err := cmd.symbolStore(ctx)
	if err != nil {
		return err
	}
	if err = cmd.importSymbols(ctx, store); err != nil {
		return err
	}
	if cmd.importOnly {
		if len(args) != 0 {
			return usageError("-import-only takes no profile argument")
		}
		return nil
	}

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

	symbols, err := symbolication.NewStore(store, uint32(cmd.cfg.SymbolCacheSize))
	if err != nil {
		return err
	}
	stop := periodiccaller.Start(ctx, cmd.cfg.ProgressInterval, func() {
		stats := symbols.Stats()
		log.Infof("Symbolication in progress: %d libraries requested, %d failed",
			stats.Requests, stats.Failures)
	})
	err = session.Symbolicate(ctx, symbols, cmd.cfg.CoalesceWindow)
	stop()
	if err != nil {
		return err
	}

	tree, err := session.CallTree(thread, params)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(cmd.out)
	printCallTree(w, tree, -1)
	return w.Flush()
}
