// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profilefile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/gecko"
)

const minimalProfile = `{
  "meta": {"version": 3, "interval": 1, "startTime": 0, "abi": "x86_64-gcc3"},
  "libs": "[]",
  "threads": [{
    "name": "GeckoMain",
    "samples": {"schema": {"stack": 0, "time": 1, "responsiveness": 2, "rss": 3, "uss": 4,
      "frameNumber": 5}, "data": [[0, 0, 0, null, null, 1]]},
    "markers": {"schema": {"name": 0, "time": 1, "data": 2}, "data": []},
    "stackTable": {"schema": {"prefix": 0, "frame": 1}, "data": [[null, 0]]},
    "frameTable": {"schema": {"location": 0, "implementation": 1, "optimizations": 2,
      "line": 3, "category": 4}, "data": [[0, null, null, null, 16]]},
    "stringTable": ["main"]
  }]
}`

func gzipped(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestDetect(t *testing.T) {
	plain := []byte(minimalProfile)
	assert.Equal(t, None, Detect(plain))
	assert.Equal(t, None, Detect(nil))
	assert.Equal(t, Gzip, Detect(gzipped(t, plain)))
	assert.Equal(t, Zstd, Detect(zstded(t, plain)))
	assert.Equal(t, "zstd", Zstd.String())
}

func TestNewReader(t *testing.T) {
	plain := []byte(minimalProfile)
	tests := map[string][]byte{
		"plain": plain,
		"gzip":  gzipped(t, plain),
		"zstd":  zstded(t, plain),
		"empty": nil,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			if data == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, plain, got)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string][]byte{
		"profile.json":     []byte(minimalProfile),
		"profile.json.gz":  gzipped(t, []byte(minimalProfile)),
		"profile.json.zst": zstded(t, []byte(minimalProfile)),
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			p, err := Load(path)
			require.NoError(t, err)
			require.Len(t, p.Threads, 1)
			assert.Equal(t, gecko.CurrentVersion, p.Meta.Version)
			assert.Equal(t, "main", p.Threads[0].FuncName(0))

			raw, err := ReadRaw(path)
			require.NoError(t, err)
			version, err := gecko.Version(raw)
			require.NoError(t, err)
			assert.Equal(t, 3, version)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "broken.json.gz")
	require.NoError(t, os.WriteFile(path, gzipped(t, []byte("{")), 0o600))
	_, err = Load(path)
	require.ErrorIs(t, err, gecko.ErrMalformedProfile)

	path = filepath.Join(dir, "truncated.gz")
	require.NoError(t, os.WriteFile(path, gzipMagic, 0o600))
	_, err = Load(path)
	require.Error(t, err)
}
