// Copyright 2024 VexDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aggexec

import (
	"bytes"
	"encoding/binary"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/vector"
)

// Position locates one record inside a ValueList. It stays valid for
// the life of the list: chunks only ever grow forward and records never
// move.
type Position struct {
	chunk  int32
	offset int32
}

const (
	// initChunkSize keeps the first chunk small; a group that only ever
	// sees a handful of fixed-width values pays for little more than it
	// uses. Later chunks double up to maxChunkSize.
	initChunkSize = 64
	maxChunkSize  = 16 * 1024

	// record framing inside a chunk: u32 record length, then the record
	// itself ([8-byte hash][payload]). The length prefix is chunk-local
	// bookkeeping and is not part of the record.
	recordLenSize  = 4
	recordHashSize = 8
)

// ValueList is an append-only store of serialized values. Every record
// is the value's 8-byte hash followed by its canonical payload, so
// identity probes can reject on the hash without touching the payload,
// and a record can be relocated wholesale without re-hashing.
type ValueList struct {
	mp *mpool.MPool

	chunks  [][]byte
	tail    int // used bytes of the last chunk
	nextCap int

	size    int
	scratch []byte
}

func NewValueList(mp *mpool.MPool) *ValueList {
	return &ValueList{mp: mp, nextCap: initChunkSize}
}

// Size returns the number of stored records.
func (l *ValueList) Size() int {
	return l.size
}

// Append serializes vec[row] and stores it. The returned position is
// never invalidated by later appends.
func (l *ValueList) Append(vec *vector.Vector, row int) (Position, error) {
	payload, err := serializeCell(l.scratch[:0], vec, row)
	if err != nil {
		return Position{}, err
	}
	l.scratch = payload[:0]
	return l.appendRecord(cellHash(payload), payload)
}

// AppendSerialized stores an already-framed record (hash followed by
// payload), e.g. one copied out of another list or out of a spill cell.
func (l *ValueList) AppendSerialized(record []byte) (Position, error) {
	if len(record) < recordHashSize {
		return Position{}, moerr.NewInvalidInputf("serialized record of %d bytes has no hash", len(record))
	}
	return l.appendRecord(binary.LittleEndian.Uint64(record), record[recordHashSize:])
}

func (l *ValueList) appendRecord(hash uint64, payload []byte) (Position, error) {
	need := recordLenSize + recordHashSize + len(payload)
	if err := l.ensure(need); err != nil {
		return Position{}, err
	}

	chunk := l.chunks[len(l.chunks)-1]
	pos := Position{chunk: int32(len(l.chunks) - 1), offset: int32(l.tail)}

	binary.LittleEndian.PutUint32(chunk[l.tail:], uint32(recordHashSize+len(payload)))
	binary.LittleEndian.PutUint64(chunk[l.tail+recordLenSize:], hash)
	copy(chunk[l.tail+recordLenSize+recordHashSize:], payload)

	l.tail += need
	l.size++
	return pos, nil
}

// ensure leaves the tail chunk with at least need free bytes, reusing
// leftover tail capacity before allocating. Records never span chunks.
func (l *ValueList) ensure(need int) error {
	if len(l.chunks) > 0 && len(l.chunks[len(l.chunks)-1])-l.tail >= need {
		return nil
	}
	sz := l.nextCap
	if sz < need {
		sz = need
	}
	chunk, err := l.mp.Alloc(sz)
	if err != nil {
		return err
	}
	l.chunks = append(l.chunks, chunk)
	l.tail = 0
	if l.nextCap < maxChunkSize {
		l.nextCap *= 2
	}
	return nil
}

// recordAt returns the full record (hash + payload) at pos.
func (l *ValueList) recordAt(pos Position) []byte {
	chunk := l.chunks[pos.chunk]
	n := binary.LittleEndian.Uint32(chunk[pos.offset:])
	start := int(pos.offset) + recordLenSize
	return chunk[start : start+int(n)]
}

func (l *ValueList) payloadAt(pos Position) []byte {
	return l.recordAt(pos)[recordHashSize:]
}

// ReadHash returns the stored hash without touching the payload.
func (l *ValueList) ReadHash(pos Position) uint64 {
	return binary.LittleEndian.Uint64(l.recordAt(pos))
}

// EqualTo compares the values behind two positions, nulls comparing as
// values. The hash prefix short-circuits the common mismatch.
func (l *ValueList) EqualTo(a, b Position) bool {
	if l.ReadHash(a) != l.ReadHash(b) {
		return false
	}
	return bytes.Equal(l.payloadAt(a), l.payloadAt(b))
}

// equalToPayload is the probe used by the uniqueness set: it compares a
// stored record against a candidate payload that is not stored yet.
func (l *ValueList) equalToPayload(pos Position, payload []byte) bool {
	return bytes.Equal(l.payloadAt(pos), payload)
}

// ReadValue deserializes the value at pos onto the end of dst.
func (l *ValueList) ReadValue(pos Position, dst *vector.Vector) error {
	rest, err := deserializeCell(l.payloadAt(pos), dst, l.mp)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return moerr.NewInternalErrorf("%d trailing bytes after value", len(rest))
	}
	return nil
}

// SerializedSize reports the record size at pos, hash included, i.e.
// exactly what CopySerializedTo would write.
func (l *ValueList) SerializedSize(pos Position) int {
	return len(l.recordAt(pos))
}

// CopySerializedTo copies the whole record (hash + payload) into buf so
// it can be re-appended elsewhere without recomputing the hash. The
// destination must hold SerializedSize(pos) bytes.
func (l *ValueList) CopySerializedTo(pos Position, buf []byte) (int, error) {
	record := l.recordAt(pos)
	if len(buf) < len(record) {
		return 0, moerr.NewShortBuffer(len(record), len(buf))
	}
	return copy(buf, record), nil
}

// Free returns every chunk to the pool. All positions die with it.
func (l *ValueList) Free() {
	for _, chunk := range l.chunks {
		l.mp.Free(chunk)
	}
	l.chunks = nil
	l.tail = 0
	l.nextCap = initChunkSize
	l.size = 0
	l.scratch = nil
}
