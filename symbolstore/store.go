// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbolstore implements a symbol table provider backed by a local
// directory of compressed symbol files and an optional S3 bucket.
//
// Symbol tables are stored per library build under <debugName>/<breakpadID>.
// Tables present remotely but not locally are downloaded and kept locally on
// first use.
package symbolstore // import "go.opentelemetry.io/profile-viewer/symbolstore"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/profile-viewer/metrics"
	"go.opentelemetry.io/profile-viewer/symbolication"
)

const (
	// localTempPrefix is the prefix of files that are still being written.
	localTempPrefix = "tmp."
	// s3KeyPrefix is prepended to all S3 keys.
	s3KeyPrefix = "symbols/"
	fileSuffix  = ".sym.zst"
)

// ErrNotFound is returned when neither the local directory nor the remote
// bucket has a symbol table for the requested library.
var ErrNotFound = errors.New("symbol table not found")

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput,
		optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput,
		optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store reads and writes symbol tables. It implements
// symbolication.SymbolProvider.
type Store struct {
	localPath string
	s3client  S3API
	bucket    string
}

var _ symbolication.SymbolProvider = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRemote backs the store with an S3 bucket.
func WithRemote(client S3API, bucket string) Option {
	return func(s *Store) {
		s.s3client = client
		s.bucket = bucket
	}
}

// New creates a store rooted at localPath, creating the directory if needed.
func New(localPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(localPath, 0o750); err != nil {
		return nil, err
	}
	s := &Store{localPath: localPath}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewS3Client creates an S3 client from the default AWS configuration. An
// empty endpoint keeps the AWS default, a custom endpoint uses path style
// addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func keyParts(debugName, breakpadID string) (string, string, error) {
	for _, part := range []string{debugName, breakpadID} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", "", fmt.Errorf("invalid library key %q/%q", debugName, breakpadID)
		}
	}
	return debugName, breakpadID + fileSuffix, nil
}

func (s *Store) makeLocalPath(debugName, breakpadID string) (string, error) {
	dir, file, err := keyParts(debugName, breakpadID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.localPath, dir, file), nil
}

func makeS3Key(debugName, breakpadID string) (string, error) {
	dir, file, err := keyParts(debugName, breakpadID)
	if err != nil {
		return "", err
	}
	return s3KeyPrefix + dir + "/" + file, nil
}

// Insert stores a symbol table locally, replacing an existing one.
func (s *Store) Insert(debugName, breakpadID string, table *symbolication.SymbolTable) error {
	localPath, err := s.makeLocalPath(debugName, breakpadID)
	if err != nil {
		return err
	}
	return s.writeLocal(localPath, Encode(table))
}

// ImportBreakpad parses a Breakpad symbol file and stores it under the
// module name and id it declares.
func (s *Store) ImportBreakpad(r io.Reader) (debugName, breakpadID string, err error) {
	debugName, breakpadID, table, err := ParseBreakpad(r)
	if err != nil {
		return "", "", err
	}
	if err := s.Insert(debugName, breakpadID, table); err != nil {
		return "", "", err
	}
	log.WithFields(log.Fields{
		"lib":     debugName,
		"id":      breakpadID,
		"symbols": table.Len(),
	}).Info("Imported symbol table")
	return debugName, breakpadID, nil
}

func (s *Store) writeLocal(localPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return err
	}
	// Write to a temporary file first so crashes never leave partial files.
	out, err := os.CreateTemp(filepath.Dir(localPath), localTempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create file in local store: %w", err)
	}
	defer out.Close()
	if _, err := out.Write(data); err != nil {
		_ = os.Remove(out.Name())
		return fmt.Errorf("failed to write symbol table: %w", err)
	}
	return commitTempFile(out, localPath)
}

// Upload copies a locally stored table to the remote bucket.
func (s *Store) Upload(ctx context.Context, debugName, breakpadID string) error {
	if s.s3client == nil {
		return errors.New("no remote configured")
	}
	localPath, err := s.makeLocalPath(debugName, breakpadID)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, debugName, breakpadID)
		}
		return err
	}
	key, err := makeS3Key(debugName, breakpadID)
	if err != nil {
		return err
	}
	contentType := "application/octet-stream"
	_, err = s.s3client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload symbol table: %w", err)
	}
	return nil
}

// RequestSymbolTable returns the symbol table of a library build.
func (s *Store) RequestSymbolTable(ctx context.Context, debugName,
	breakpadID string) (*symbolication.SymbolTable, error) {
	localPath, err := s.makeLocalPath(debugName, breakpadID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(localPath)
	switch {
	case err == nil:
		metrics.Add(metrics.IDSymbolStoreLocalHit, 1)
	case os.IsNotExist(err):
		data, err = s.download(ctx, debugName, breakpadID)
		if err != nil {
			return nil, err
		}
		metrics.Add(metrics.IDSymbolStoreRemoteHit, 1)
		if err := s.writeLocal(localPath, data); err != nil {
			log.Warnf("Failed to cache %s/%s locally: %v", debugName, breakpadID, err)
		}
	default:
		return nil, err
	}
	table, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", localPath, err)
	}
	return table, nil
}

func (s *Store) download(ctx context.Context, debugName, breakpadID string) ([]byte, error) {
	if s.s3client == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, debugName, breakpadID)
	}
	key, err := makeS3Key(debugName, breakpadID)
	if err != nil {
		return nil, err
	}
	resp, err := s.s3client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isErrNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, debugName, breakpadID)
		}
		return nil, fmt.Errorf("failed to download symbol table: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// commitTempFile flushes the given file to disk, then moves it to its final
// destination.
func commitTempFile(temp *os.File, finalPath string) error {
	if err := unix.Fsync(int(temp.Fd())); err != nil {
		return fmt.Errorf("failed to flush file to disk: %w", err)
	}
	if err := os.Rename(temp.Name(), finalPath); err != nil {
		return fmt.Errorf("failed to move file to final location: %w", err)
	}
	return nil
}

// isErrNoSuchKey checks whether the given AWS error indicates that the given
// key does not exist. The client reports a missing key either as NoSuchKey or
// as a plain 404 NotFound.
func isErrNoSuchKey(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
