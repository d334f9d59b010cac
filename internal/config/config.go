// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the settings shared by all profview subcommands.
package config // import "go.opentelemetry.io/profile-viewer/internal/config"

import (
	"errors"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultCacheSize is the number of entries per derivation memo table.
	DefaultCacheSize = 256
	// DefaultSymbolCacheSize is the number of symbol tables kept in memory.
	DefaultSymbolCacheSize = 64
	// DefaultCoalesceWindow is how long symbolication results are batched.
	DefaultCoalesceWindow = 100 * time.Millisecond
	// DefaultProgressInterval is the period of symbolication progress logging.
	DefaultProgressInterval = 5 * time.Second
	// DefaultJankThreshold is the event delay in milliseconds reported as jank.
	DefaultJankThreshold = 50.0

	maxCacheSize = 1 << 20
)

var errInvalidConfig = errors.New("invalid configuration")

// Config is the result of parsing the global command line flags.
type Config struct {
	Verbose bool
	Version bool

	CacheSize       uint
	SymbolCacheSize uint

	SymbolDir  string
	S3Bucket   string
	S3Region   string
	S3Endpoint string

	CoalesceWindow   time.Duration
	ProgressInterval time.Duration
	JankThreshold    float64

	Fs *flag.FlagSet
}

// Dump visits all flags of the flag set, and dumps them to debug.
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	log.Debug("Config:")
	if cfg.Fs == nil {
		return
	}
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided.
func (cfg *Config) Validate() error {
	if cfg.CacheSize == 0 || cfg.CacheSize > maxCacheSize {
		return fmt.Errorf("%w: cache-size %d not in [1,%d]",
			errInvalidConfig, cfg.CacheSize, maxCacheSize)
	}
	if cfg.SymbolCacheSize == 0 || cfg.SymbolCacheSize > maxCacheSize {
		return fmt.Errorf("%w: symbol-cache-size %d not in [1,%d]",
			errInvalidConfig, cfg.SymbolCacheSize, maxCacheSize)
	}
	if cfg.CoalesceWindow < 0 {
		return fmt.Errorf("%w: negative coalesce-window %v", errInvalidConfig, cfg.CoalesceWindow)
	}
	if cfg.ProgressInterval <= 0 {
		return fmt.Errorf("%w: progress-interval must be positive", errInvalidConfig)
	}
	if cfg.JankThreshold <= 0 {
		return fmt.Errorf("%w: jank-threshold must be positive", errInvalidConfig)
	}
	if cfg.S3Bucket != "" && cfg.SymbolDir == "" {
		return fmt.Errorf("%w: s3-bucket requires symbol-dir", errInvalidConfig)
	}
	if cfg.S3Bucket == "" && (cfg.S3Region != "" || cfg.S3Endpoint != "") {
		return fmt.Errorf("%w: s3-region and s3-endpoint require s3-bucket", errInvalidConfig)
	}
	return nil
}

// IsInvalid reports whether err was returned by Validate.
func IsInvalid(err error) bool {
	return errors.Is(err, errInvalidConfig)
}
