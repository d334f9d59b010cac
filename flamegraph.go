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
)

type flameGraphCmd struct {
	cfg *config.Config
	out io.Writer

	// User-specified command line arguments.
	view       viewFlags
	categories bool
}

func newFlameGraphCmd(cfg *config.Config, out io.Writer) *ffcli.Command {
	cmd := flameGraphCmd{cfg: cfg, out: out}
	set := flag.NewFlagSet("flamegraph", flag.ContinueOnError)
	cmd.view.register(set)
	set.BoolVar(&cmd.categories, "categories", false,
		"Print the leaf category row instead of the stack rows")
	return &ffcli.Command{
		Name:       "flamegraph",
		ShortUsage: "flamegraph [flags] <profile>",
		ShortHelp:  "Print the stack chart boxes of a thread, one row per depth",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *flameGraphCmd) exec(_ context.Context, args []string) error {
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
	p := session.Profile()
	thread, err := cmd.view.threadIndex(p)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(cmd.out)
	if cmd.categories {
		rows, err := session.LeafCategoryTiming(thread, params)
		if err != nil {
			return err
		}
		for _, row := range rows {
			for i := 0; i < row.Length; i++ {
				name := fmt.Sprintf("category %d", row.Category[i])
				if c := row.Category[i]; c >= 0 && c < len(p.Meta.Categories) {
					name = p.Meta.Categories[c].Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", formatTime(row.Start[i]),
					formatTime(row.End[i]), name)
			}
		}
		return w.Flush()
	}

	rows, err := session.StackTiming(thread, params)
	if err != nil {
		return err
	}
	info, err := session.CallNodeInfo(thread, params)
	if err != nil {
		return err
	}
	th, err := session.FilteredThread(thread, params)
	if err != nil {
		return err
	}
	for depth, row := range rows {
		for i := 0; i < row.Length; i++ {
			fn := info.Table.Func[row.CallNode[i]]
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", depth, formatTime(row.Start[i]),
				formatTime(row.End[i]), th.FuncName(fn))
		}
	}
	return w.Flush()
}
