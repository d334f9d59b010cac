// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"

	"go.opentelemetry.io/profile-viewer/calltree"
	"go.opentelemetry.io/profile-viewer/internal/config"
	"go.opentelemetry.io/profile-viewer/transform"
)

type callTreeCmd struct {
	cfg *config.Config
	out io.Writer

	// User-specified command line arguments.
	view     viewFlags
	maxDepth int
}

func newCallTreeCmd(cfg *config.Config, out io.Writer) *ffcli.Command {
	cmd := callTreeCmd{cfg: cfg, out: out}
	set := flag.NewFlagSet("calltree", flag.ContinueOnError)
	cmd.view.register(set)
	set.IntVar(&cmd.maxDepth, "max-depth", -1, "Do not print nodes deeper than this, -1 for all")
	return &ffcli.Command{
		Name:       "calltree",
		ShortUsage: "calltree [flags] <profile>",
		ShortHelp:  "Print the call tree of a thread",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *callTreeCmd) exec(_ context.Context, args []string) error {
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
	tree, err := session.CallTree(thread, params)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(cmd.out)
	th := session.Profile().Threads[thread]
	fmt.Fprintf(w, "%s (thread %d)\n", th.Name, thread)
	for _, tr := range params.Transforms {
		fmt.Fprintf(w, "  %s\n", transform.Label(th, tr))
	}
	printCallTree(w, tree, cmd.maxDepth)
	return w.Flush()
}

// printCallTree writes one line per call node in display order.
func printCallTree(w io.Writer, tree *calltree.CallTree, maxDepth int) {
	fmt.Fprintf(w, "%10s %7s %10s  %s\n", "TOTAL", "%", "SELF", "FUNCTION")
	tree.Walk(func(node, depth int) bool {
		d := tree.DisplayData(node)
		name := d.Name
		if d.Lib != "" {
			name += " [" + d.Lib + "]"
		}
		fmt.Fprintf(w, "%10s %7s %10s  %s%s\n", d.TotalTime, d.TotalTimePercent,
			d.SelfTime, strings.Repeat("  ", depth), name)
		return maxDepth < 0 || depth < maxDepth
	})
}
