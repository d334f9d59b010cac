// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/symbolication"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput,
	_ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput,
	_ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*params.Bucket+"/"+*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func testTable() *symbolication.SymbolTable {
	return symbolication.NewSymbolTable([]symbolication.Symbol{
		{Address: 0x1000, Name: "main"},
		{Address: 0x10, Name: "_start"},
		{Address: 0x2400, Name: "nsThread::ProcessNextEvent(bool, bool*)"},
	})
}

func TestEncodeDecode(t *testing.T) {
	table := testTable()
	decoded, err := Decode(Encode(table))
	require.NoError(t, err)
	assert.Equal(t, table.Addrs, decoded.Addrs)
	assert.Equal(t, table.Index, decoded.Index)
	assert.Equal(t, table.Buffer, decoded.Buffer)

	empty, err := Decode(Encode(symbolication.NewSymbolTable(nil)))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestDecodeErrors(t *testing.T) {
	data := Encode(testTable())

	_, err := Decode([]byte("garbage"))
	require.ErrorIs(t, err, errBadMagic)

	corrupt := bytes.Clone(data)
	corrupt[len(magic)] ^= 0xff
	_, err = Decode(corrupt)
	require.ErrorIs(t, err, errBadChecksum)

	_, err = Decode(data[:len(data)-3])
	require.Error(t, err)
}

func TestParseBreakpad(t *testing.T) {
	sym := strings.Join([]string{
		"MODULE Linux x86_64 4C4C44E455E831B1ACE0FC7E0A4D5F4B0 libxul.so",
		"FILE 0 /build/src/main.cpp",
		"FUNC 1000 20 0 main",
		"1000 10 12 0",
		"FUNC m 2400 80 0 nsThread::ProcessNextEvent(bool, bool*)",
		"PUBLIC 10 0 _start",
		"INFO CODE_ID 1234",
		"",
	}, "\n")
	debugName, breakpadID, table, err := ParseBreakpad(strings.NewReader(sym))
	require.NoError(t, err)
	assert.Equal(t, "libxul.so", debugName)
	assert.Equal(t, "4C4C44E455E831B1ACE0FC7E0A4D5F4B0", breakpadID)
	assert.Equal(t, testTable().Addrs, table.Addrs)
	assert.Equal(t, "nsThread::ProcessNextEvent(bool, bool*)", table.Name(2))

	_, _, _, err = ParseBreakpad(strings.NewReader("FUNC zz 20 0 main\n"))
	require.Error(t, err)
	_, _, _, err = ParseBreakpad(strings.NewReader("PUBLIC\n"))
	require.Error(t, err)
}

func TestStoreLocal(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.RequestSymbolTable(ctx, "libxul.so", "ABC")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Insert("libxul.so", "ABC", testTable()))
	table, err := store.RequestSymbolTable(ctx, "libxul.so", "ABC")
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	require.Error(t, store.Insert("../etc", "ABC", testTable()))
	_, err = store.RequestSymbolTable(ctx, "libxul.so", "")
	require.Error(t, err)
	require.Error(t, store.Upload(ctx, "libxul.so", "ABC"))
}

func TestStoreRemote(t *testing.T) {
	remote := newFakeS3()
	ctx := context.Background()

	uploader, err := New(t.TempDir(), WithRemote(remote, "bucket"))
	require.NoError(t, err)
	require.NoError(t, uploader.Insert("libxul.so", "ABC", testTable()))
	require.NoError(t, uploader.Upload(ctx, "libxul.so", "ABC"))
	require.Contains(t, remote.objects, "bucket/symbols/libxul.so/ABC.sym.zst")
	require.ErrorIs(t, uploader.Upload(ctx, "libxul.so", "DEF"), ErrNotFound)

	dir := t.TempDir()
	store, err := New(dir, WithRemote(remote, "bucket"))
	require.NoError(t, err)

	table, err := store.RequestSymbolTable(ctx, "libxul.so", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "main", table.Name(1))

	// The downloaded table is kept locally.
	_, err = os.Stat(filepath.Join(dir, "libxul.so", "ABC.sym.zst"))
	require.NoError(t, err)
	_, err = store.RequestSymbolTable(ctx, "libxul.so", "ABC")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.gets)

	_, err = store.RequestSymbolTable(ctx, "libc.so.6", "DEF")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestImportBreakpad(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	debugName, breakpadID, err := store.ImportBreakpad(strings.NewReader(
		"MODULE Linux x86_64 ABC libfoo.so\nPUBLIC 10 0 foo\n"))
	require.NoError(t, err)
	assert.Equal(t, "libfoo.so", debugName)

	table, err := store.RequestSymbolTable(context.Background(), debugName, breakpadID)
	require.NoError(t, err)
	assert.Equal(t, "foo", table.Name(0))
}

func TestStoreAsProvider(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Insert("libxul.so", "ABC", testTable()))

	cache, err := symbolication.NewStore(store, 8)
	require.NoError(t, err)
	table, err := cache.SymbolTable(context.Background(),
		symbolication.LibKey{DebugName: "libxul.so", BreakpadID: "ABC"})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Lookup(0x3000))

	_, err = cache.SymbolTable(context.Background(),
		symbolication.LibKey{DebugName: "libnss3.so", BreakpadID: "X"})
	require.ErrorIs(t, err, symbolication.ErrSymbolicationFailure)
}
