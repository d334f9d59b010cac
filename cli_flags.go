// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterbourgon/ff/v3"

	"go.opentelemetry.io/profile-viewer/internal/config"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/profileview"
	"go.opentelemetry.io/profile-viewer/transform"
)

// Help strings for command line arguments
var (
	configHelp          = "Path to a configuration file with one flag per line."
	verboseModeHelp     = "Enable verbose logging and debugging capabilities."
	versionHelp         = "Show version."
	cacheSizeHelp       = "Number of entries kept per derivation cache."
	symbolCacheSizeHelp = "Number of symbol tables kept in memory."
	symbolDirHelp       = "Directory of the local symbol store."
	s3BucketHelp        = "S3 bucket mirroring the symbol store. Requires -symbol-dir."
	s3RegionHelp        = "Region of the S3 bucket, defaults to the AWS configuration."
	s3EndpointHelp      = "Custom S3 endpoint, e.g. for MinIO. Uses path style addressing."
	coalesceWindowHelp  = "Time symbolication results are batched before being applied."
	progressHelp        = "Interval of symbolication progress logging."
	jankThresholdHelp   = fmt.Sprintf("Event processing delay in milliseconds reported as "+
		"jank. Default is %v.", config.DefaultJankThreshold)

	threadHelp     = "Index of the thread to show. Defaults to the main thread."
	rangeHelp      = "Committed time range `start,end` in milliseconds."
	selectionHelp  = "Preview selection `start,end` in milliseconds within -range."
	searchHelp     = "Comma separated search terms. Samples without a match are dropped."
	implHelp       = "Implementation filter: combined, js or cpp."
	invertHelp     = "Invert the call stacks."
	transformsHelp = "Transform stack, e.g. `f-combined-0w2~mf-3`."
)

var errInvalidRange = errors.New("invalid time range")

// Package-scope variable, so that every command parses its flags the same way.
var ffOptions = []ff.Option{
	ff.WithEnvVarPrefix("PROFVIEW"),
	ff.WithConfigFileFlag("config"),
	ff.WithConfigFileParser(ff.PlainParser),
	// This will ignore configuration file (only) options that the current
	// version does not recognize.
	ff.WithIgnoreUndefined(true),
	ff.WithAllowMissingConfigFile(true),
}

func newRootFlagSet(cfg *config.Config) *flag.FlagSet {
	fs := flag.NewFlagSet("profview", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.UintVar(&cfg.CacheSize, "cache-size", config.DefaultCacheSize, cacheSizeHelp)
	fs.DurationVar(&cfg.CoalesceWindow, "coalesce-window", config.DefaultCoalesceWindow,
		coalesceWindowHelp)
	fs.String("config", "", configHelp)

	fs.Float64Var(&cfg.JankThreshold, "jank-threshold", config.DefaultJankThreshold,
		jankThresholdHelp)

	fs.DurationVar(&cfg.ProgressInterval, "progress-interval", config.DefaultProgressInterval,
		progressHelp)

	fs.StringVar(&cfg.S3Bucket, "s3-bucket", "", s3BucketHelp)
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", "", s3EndpointHelp)
	fs.StringVar(&cfg.S3Region, "s3-region", "", s3RegionHelp)
	fs.UintVar(&cfg.SymbolCacheSize, "symbol-cache-size", config.DefaultSymbolCacheSize,
		symbolCacheSizeHelp)
	fs.StringVar(&cfg.SymbolDir, "symbol-dir", "", symbolDirHelp)

	fs.BoolVar(&cfg.Verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&cfg.Verbose, "verbose", false, verboseModeHelp)
	fs.BoolVar(&cfg.Version, "version", false, versionHelp)

	cfg.Fs = fs
	return fs
}

// viewFlags are the flags selecting the thread and view of a profile.
type viewFlags struct {
	thread     int
	timeRange  string
	selection  string
	search     string
	impl       string
	invert     bool
	transforms string
}

func (v *viewFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&v.thread, "thread", -1, threadHelp)
	fs.StringVar(&v.timeRange, "range", "", rangeHelp)
	fs.StringVar(&v.selection, "selection", "", selectionHelp)
	fs.StringVar(&v.search, "search", "", searchHelp)
	fs.StringVar(&v.impl, "impl", string(profile.ImplementationCombined), implHelp)
	fs.BoolVar(&v.invert, "invert", false, invertHelp)
	fs.StringVar(&v.transforms, "transforms", "", transformsHelp)
}

// threadIndex resolves -thread against p.
func (v *viewFlags) threadIndex(p *profile.Profile) (int, error) {
	if len(p.Threads) == 0 {
		return 0, errors.New("profile has no threads")
	}
	if v.thread < 0 {
		return profile.DefaultThreadOrder(p.Threads)[0], nil
	}
	if v.thread >= len(p.Threads) {
		return 0, fmt.Errorf("%w: %d, profile has %d threads",
			profileview.ErrNoSuchThread, v.thread, len(p.Threads))
	}
	return v.thread, nil
}

func (v *viewFlags) params() (profileview.Params, error) {
	var params profileview.Params
	var err error
	if params.Range, err = parseRange(v.timeRange); err != nil {
		return params, err
	}
	if params.Selection, err = parseRange(v.selection); err != nil {
		return params, err
	}
	if params.Implementation, err = parseImplementation(v.impl); err != nil {
		return params, err
	}
	if params.Transforms, err = transform.ParseStack(v.transforms); err != nil {
		return params, err
	}
	params.Search = v.search
	params.Inverted = v.invert
	return params, nil
}

func parseImplementation(s string) (profile.Implementation, error) {
	switch impl := profile.Implementation(s); impl {
	case "", profile.ImplementationCombined:
		return profile.ImplementationCombined, nil
	case profile.ImplementationJS, profile.ImplementationCpp:
		return impl, nil
	default:
		return "", fmt.Errorf("unknown implementation %q", s)
	}
}

// parseRange parses `start,end`. The empty string is no range.
func parseRange(s string) (*profile.StartEndRange, error) {
	if s == "" {
		return nil, nil
	}
	startStr, endStr, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("%w: %q, expected start,end", errInvalidRange, s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(startStr), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errInvalidRange, s, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(endStr), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errInvalidRange, s, err)
	}
	if end < start {
		return nil, fmt.Errorf("%w: %q ends before it starts", errInvalidRange, s)
	}
	return &profile.StartEndRange{Start: start, End: end}, nil
}
