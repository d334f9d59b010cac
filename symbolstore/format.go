// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolstore // import "go.opentelemetry.io/profile-viewer/symbolstore"

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	sha256 "github.com/minio/sha256-simd"

	"go.opentelemetry.io/profile-viewer/symbolication"
)

// File layout: magic, SHA256 of the uncompressed payload, zstd payload. The
// payload is a uvarint symbol count followed by, per symbol, the uvarint
// address delta to the previous symbol and the uvarint length prefixed name.
const magic = "PVSYMv1\x00"

var (
	errBadMagic    = errors.New("not a symbol table file")
	errBadChecksum = errors.New("symbol table checksum mismatch")
)

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Encode serializes a symbol table.
func Encode(table *symbolication.SymbolTable) []byte {
	payload := binary.AppendUvarint(nil, uint64(table.Len()))
	prev := uint32(0)
	for i := range table.Len() {
		addr := table.Address(i)
		name := table.Name(i)
		payload = binary.AppendUvarint(payload, uint64(addr-prev))
		payload = binary.AppendUvarint(payload, uint64(len(name)))
		payload = append(payload, name...)
		prev = addr
	}
	sum := sha256.Sum256(payload)

	out := make([]byte, 0, len(magic)+len(sum)+len(payload)/2)
	out = append(out, magic...)
	out = append(out, sum[:]...)
	return encoder.EncodeAll(payload, out)
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*symbolication.SymbolTable, error) {
	if !bytes.HasPrefix(data, []byte(magic)) || len(data) < len(magic)+sha256.Size {
		return nil, errBadMagic
	}
	data = data[len(magic):]
	var sum [sha256.Size]byte
	copy(sum[:], data)
	payload, err := decoder.DecodeAll(data[sha256.Size:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress symbol table: %w", err)
	}
	if sha256.Sum256(payload) != sum {
		return nil, errBadChecksum
	}

	r := bytes.NewReader(payload)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol count: %w", err)
	}
	if count > uint64(len(payload)) {
		return nil, fmt.Errorf("invalid symbol count %d", count)
	}
	table := &symbolication.SymbolTable{
		Addrs: make([]uint32, 0, count),
		Index: make([]uint32, 1, count+1),
	}
	addr := uint64(0)
	for i := range count {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read address of symbol %d: %w", i, err)
		}
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return nil, fmt.Errorf("failed to read name of symbol %d", i)
		}
		addr += delta
		start := len(table.Buffer)
		table.Buffer = append(table.Buffer, make([]byte, n)...)
		if _, err := io.ReadFull(r, table.Buffer[start:]); err != nil {
			return nil, err
		}
		table.Addrs = append(table.Addrs, uint32(addr))
		table.Index = append(table.Index, uint32(len(table.Buffer)))
	}
	return table, table.Validate()
}

// ParseBreakpad reads the FUNC and PUBLIC records of a Breakpad symbol file.
// The module's debug name and id are returned from the MODULE record.
func ParseBreakpad(r io.Reader) (debugName, breakpadID string,
	table *symbolication.SymbolTable, err error) {
	var symbols []symbolication.Symbol
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var nameFields int
		switch fields[0] {
		case "MODULE":
			// MODULE os arch id name
			if len(fields) < 5 {
				return "", "", nil, fmt.Errorf("line %d: short MODULE record", line)
			}
			breakpadID, debugName = fields[3], strings.Join(fields[4:], " ")
			continue
		case "FUNC":
			// FUNC [m] address size param_size name
			fields = dropMultiple(fields)
			nameFields = 4
		case "PUBLIC":
			// PUBLIC [m] address param_size name
			fields = dropMultiple(fields)
			nameFields = 3
		default:
			continue
		}
		if len(fields) <= nameFields {
			return "", "", nil, fmt.Errorf("line %d: short %s record", line, fields[0])
		}
		addr, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			return "", "", nil, fmt.Errorf("line %d: invalid address: %w", line, err)
		}
		symbols = append(symbols, symbolication.Symbol{
			Address: uint32(addr),
			Name:    strings.Join(fields[nameFields:], " "),
		})
	}
	if err := scanner.Err(); err != nil {
		return "", "", nil, err
	}
	return debugName, breakpadID, symbolication.NewSymbolTable(symbols), nil
}

func dropMultiple(fields []string) []string {
	if len(fields) > 1 && fields[1] == "m" {
		return append(fields[:1:1], fields[2:]...)
	}
	return fields
}
