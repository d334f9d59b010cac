// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profilefile opens profile files that may be gzip or zstd
// compressed.
package profilefile // import "go.opentelemetry.io/profile-viewer/internal/profilefile"

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"go.opentelemetry.io/profile-viewer/gecko"
	"go.opentelemetry.io/profile-viewer/profile"
)

// Compression identifies the encoding of a profile file.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// Detect returns the compression indicated by the leading bytes of a file.
func Detect(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	case bytes.HasPrefix(header, zstdMagic):
		return Zstd
	default:
		return None
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	return r.close()
}

// NewReader returns a reader over the decompressed content of r.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	switch Detect(header) {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return readCloser{Reader: zr, close: func() error {
			zr.Close()
			return nil
		}}, nil
	default:
		return io.NopCloser(br), nil
	}
}

// Open opens the file at path for reading its decompressed content.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return readCloser{Reader: r, close: func() error {
		_ = r.Close()
		return f.Close()
	}}, nil
}

// ReadRaw decodes the file at path into its raw JSON object without
// upgrading it.
func ReadRaw(path string) (map[string]any, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return gecko.Decode(r)
}

// Load reads, upgrades and processes the profile at path.
func Load(path string) (*profile.Profile, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	p, err := gecko.Load(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
