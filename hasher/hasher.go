// File: hasher/hasher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FNV-1a 64-bit hashing used as the responder workload, plus the wire encodings of
// the resulting value. Encoding is the single place where the reply format changes.

package hasher

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"

	"github.com/pkg/errors"
)

// OffsetBasis is the FNV-1a 64-bit offset basis, the hash of empty input.
const OffsetBasis uint64 = 14695981039346656037

// Size is the length of a binary-encoded hash.
const Size = 8

// Sum64 returns the FNV-1a hash of b.
func Sum64(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Encoding selects how a hash travels on the wire.
type Encoding int

const (
	// LittleEndian is the canonical UDP reply: 8 bytes, least significant first.
	LittleEndian Encoding = iota
	// Decimal is the base-10 ASCII form carried in text frames.
	Decimal
	// BigEndian is 8 bytes, most significant first.
	BigEndian
)

// ParseEncoding maps a config name onto an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "le", "little-endian", "binary":
		return LittleEndian, nil
	case "decimal", "text":
		return Decimal, nil
	case "be", "big-endian":
		return BigEndian, nil
	}
	return 0, errors.Errorf("hasher: unknown encoding %q", name)
}

// String returns the config name of the encoding.
func (e Encoding) String() string {
	switch e {
	case LittleEndian:
		return "little-endian"
	case Decimal:
		return "decimal"
	case BigEndian:
		return "big-endian"
	}
	return "unknown"
}

// Append encodes h onto dst.
func (e Encoding) Append(dst []byte, h uint64) []byte {
	switch e {
	case Decimal:
		return strconv.AppendUint(dst, h, 10)
	case BigEndian:
		return binary.BigEndian.AppendUint64(dst, h)
	}
	return binary.LittleEndian.AppendUint64(dst, h)
}

// Decode is the inverse of Append.
func (e Encoding) Decode(b []byte) (uint64, error) {
	if e == Decimal {
		v, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "hasher: decimal hash")
		}
		return v, nil
	}
	if len(b) != Size {
		return 0, errors.Errorf("hasher: binary hash must be %d bytes, got %d", Size, len(b))
	}
	if e == BigEndian {
		return binary.BigEndian.Uint64(b), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}
