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
	"encoding/binary"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

// distinctSet tracks the values one group has already seen. Two bodies
// exist: a map-backed one for fixed-width scalar kinds and a
// ValueList-backed one for var-len and composite elements. The body is
// chosen once at construction; callers only see this contract.
type distinctSet interface {
	// addValue inserts vec[row]; reports whether it was new.
	addValue(vec *vector.Vector, row int) (bool, error)

	// addFromSpill re-inserts every record of a spill cell.
	addFromSpill(cell []byte) error

	// size is the number of distinct values, nulls included.
	size() int

	// extractValues materializes the distinct values, insertion-ordered.
	extractValues() (*vector.Vector, error)

	// maxSpillSize bounds what extractForSpill will write.
	maxSpillSize() int

	// extractForSpill writes the spill cell into buf and returns the
	// bytes written. buf must hold maxSpillSize() bytes.
	extractForSpill(buf []byte) (int, error)

	// clear drops the content but leaves the set usable, releasing its
	// memory back to the pool.
	clear()

	// free releases everything; the set is dead afterwards.
	free()

	// memSize is the pool footprint, attributed to the owning group row.
	memSize() int64
}

// Spill cell layout: u32 record count, then one u32 size per record,
// then the records back-to-back. Each record is byte-identical to a
// ValueList record (hash + payload), so restore never re-hashes.

func spillCellSize(recordSizes []int) int {
	sz := 4 + 4*len(recordSizes)
	for _, n := range recordSizes {
		sz += n
	}
	return sz
}

// forEachSpillRecord walks the records of a spill cell.
func forEachSpillRecord(cell []byte, fn func(record []byte) error) error {
	if len(cell) < 4 {
		return moerr.NewInvalidInputf("spill cell of %d bytes has no header", len(cell))
	}
	n := int(binary.LittleEndian.Uint32(cell))
	body := cell[4:]
	if len(body) < 4*n {
		return moerr.NewInvalidInputf("spill cell size table truncated: %d records, %d bytes", n, len(body))
	}
	sizes := body[:4*n]
	body = body[4*n:]
	for i := 0; i < n; i++ {
		recSize := int(binary.LittleEndian.Uint32(sizes[4*i:]))
		if len(body) < recSize {
			return moerr.NewInvalidInputf("spill cell record %d truncated: want %d bytes, have %d", i, recSize, len(body))
		}
		if err := fn(body[:recSize]); err != nil {
			return err
		}
		body = body[recSize:]
	}
	return nil
}

// ---------------------------------------------------------------------
// fixed-width scalar body

// fixedEntryOverhead approximates the map bucket cost per entry.
const fixedEntryOverhead = 48

type fixedEntry[T types.FixedSizeT] struct {
	val    T
	isNull bool
}

type fixedDistinctSet[T types.FixedSizeT] struct {
	typ types.Type
	mp  *mpool.MPool

	seen    map[T]struct{}
	entries []fixedEntry[T] // insertion order
	hasNull bool

	reserved int64
	scratch  []byte
}

func newFixedDistinctSet[T types.FixedSizeT](typ types.Type, mp *mpool.MPool) *fixedDistinctSet[T] {
	return &fixedDistinctSet[T]{typ: typ, mp: mp, seen: make(map[T]struct{})}
}

func (s *fixedDistinctSet[T]) reserveEntry() error {
	var zero T
	delta := int64(len(types.EncodeFixed(zero))) + fixedEntryOverhead
	if err := s.mp.Reserve(delta); err != nil {
		return err
	}
	s.reserved += delta
	return nil
}

func (s *fixedDistinctSet[T]) insert(val T, isNull bool) (bool, error) {
	if isNull {
		if s.hasNull {
			return false, nil
		}
		if err := s.reserveEntry(); err != nil {
			return false, err
		}
		s.hasNull = true
		s.entries = append(s.entries, fixedEntry[T]{isNull: true})
		return true, nil
	}
	if _, ok := s.seen[val]; ok {
		return false, nil
	}
	if err := s.reserveEntry(); err != nil {
		return false, err
	}
	s.seen[val] = struct{}{}
	s.entries = append(s.entries, fixedEntry[T]{val: val})
	return true, nil
}

func (s *fixedDistinctSet[T]) addValue(vec *vector.Vector, row int) (bool, error) {
	if vec.IsNull(uint64(row)) {
		return s.insert(*new(T), true)
	}
	return s.insert(vector.MustFixedCol[T](vec)[row], false)
}

func (s *fixedDistinctSet[T]) addFromSpill(cell []byte) error {
	return forEachSpillRecord(cell, func(record []byte) error {
		if len(record) < recordHashSize+1 {
			return moerr.NewInvalidInputf("spill record of %d bytes is no cell", len(record))
		}
		payload := record[recordHashSize:]
		if payload[0] == cellNull {
			_, err := s.insert(*new(T), true)
			return err
		}
		_, err := s.insert(types.DecodeFixed[T](payload[1:]), false)
		return err
	})
}

func (s *fixedDistinctSet[T]) size() int {
	return len(s.entries)
}

func (s *fixedDistinctSet[T]) extractValues() (*vector.Vector, error) {
	out := vector.NewVector(s.typ)
	for _, e := range s.entries {
		if err := vector.AppendFixed(out, e.val, e.isNull, s.mp); err != nil {
			out.Free(s.mp)
			return nil, err
		}
	}
	return out, nil
}

func (s *fixedDistinctSet[T]) recordPayload(e fixedEntry[T]) []byte {
	s.scratch = s.scratch[:0]
	if e.isNull {
		return append(s.scratch, cellNull)
	}
	s.scratch = append(s.scratch, cellNotNull)
	return append(s.scratch, types.EncodeFixed(e.val)...)
}

func (s *fixedDistinctSet[T]) maxSpillSize() int {
	var zero T
	width := len(types.EncodeFixed(zero))
	sizes := make([]int, len(s.entries))
	for i, e := range s.entries {
		sizes[i] = recordHashSize + 1
		if !e.isNull {
			sizes[i] += width
		}
	}
	return spillCellSize(sizes)
}

func (s *fixedDistinctSet[T]) extractForSpill(buf []byte) (int, error) {
	if len(buf) < s.maxSpillSize() {
		return 0, moerr.NewShortBuffer(s.maxSpillSize(), len(buf))
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(s.entries)))
	sizeTable := buf[4:]
	body := buf[4+4*len(s.entries):]
	written := 4 + 4*len(s.entries)

	for i, e := range s.entries {
		payload := s.recordPayload(e)
		recSize := recordHashSize + len(payload)
		binary.LittleEndian.PutUint32(sizeTable[4*i:], uint32(recSize))
		binary.LittleEndian.PutUint64(body, cellHash(payload))
		copy(body[recordHashSize:], payload)
		body = body[recSize:]
		written += recSize
	}
	return written, nil
}

func (s *fixedDistinctSet[T]) clear() {
	s.mp.Release(s.reserved)
	s.reserved = 0
	s.seen = make(map[T]struct{})
	s.entries = s.entries[:0]
	s.hasNull = false
}

func (s *fixedDistinctSet[T]) free() {
	s.mp.Release(s.reserved)
	s.reserved = 0
	s.seen = nil
	s.entries = nil
	s.hasNull = false
}

func (s *fixedDistinctSet[T]) memSize() int64 {
	return s.reserved
}

// ---------------------------------------------------------------------
// opaque body (var-len scalars and composite rows)

// opaqueEntryOverhead approximates the bucket map cost per entry.
const opaqueEntryOverhead = 64

type opaqueDistinctSet struct {
	mp *mpool.MPool

	values  *ValueList
	buckets map[uint64][]Position
	order   []Position

	// newVec builds an empty vector of the element type, children
	// included for composite elements.
	newVec func() *vector.Vector

	reserved int64
	scratch  []byte
}

func newOpaqueDistinctSet(mp *mpool.MPool, newVec func() *vector.Vector) *opaqueDistinctSet {
	return &opaqueDistinctSet{
		mp:      mp,
		values:  NewValueList(mp),
		buckets: make(map[uint64][]Position),
		newVec:  newVec,
	}
}

// insertPayload dedups against the stored records by hash bucket, then
// byte equality of the canonical payload.
func (s *opaqueDistinctSet) insertPayload(hash uint64, payload []byte, record []byte) (bool, error) {
	for _, pos := range s.buckets[hash] {
		if s.values.equalToPayload(pos, payload) {
			return false, nil
		}
	}

	var pos Position
	var err error
	if record != nil {
		pos, err = s.values.AppendSerialized(record)
	} else {
		pos, err = s.values.appendRecord(hash, payload)
	}
	if err != nil {
		return false, err
	}
	if err := s.mp.Reserve(opaqueEntryOverhead); err != nil {
		return false, err
	}
	s.reserved += opaqueEntryOverhead
	s.buckets[hash] = append(s.buckets[hash], pos)
	s.order = append(s.order, pos)
	return true, nil
}

func (s *opaqueDistinctSet) addValue(vec *vector.Vector, row int) (bool, error) {
	payload, err := serializeCell(s.scratch[:0], vec, row)
	if err != nil {
		return false, err
	}
	s.scratch = payload[:0]
	return s.insertPayload(cellHash(payload), payload, nil)
}

func (s *opaqueDistinctSet) addFromSpill(cell []byte) error {
	return forEachSpillRecord(cell, func(record []byte) error {
		if len(record) < recordHashSize {
			return moerr.NewInvalidInputf("spill record of %d bytes has no hash", len(record))
		}
		hash := binary.LittleEndian.Uint64(record)
		_, err := s.insertPayload(hash, record[recordHashSize:], record)
		return err
	})
}

func (s *opaqueDistinctSet) size() int {
	return len(s.order)
}

func (s *opaqueDistinctSet) extractValues() (*vector.Vector, error) {
	out := s.newVec()
	for _, pos := range s.order {
		if err := s.values.ReadValue(pos, out); err != nil {
			out.Free(s.mp)
			return nil, err
		}
	}
	return out, nil
}

func (s *opaqueDistinctSet) maxSpillSize() int {
	sizes := make([]int, len(s.order))
	for i, pos := range s.order {
		sizes[i] = s.values.SerializedSize(pos)
	}
	return spillCellSize(sizes)
}

func (s *opaqueDistinctSet) extractForSpill(buf []byte) (int, error) {
	if len(buf) < s.maxSpillSize() {
		return 0, moerr.NewShortBuffer(s.maxSpillSize(), len(buf))
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(s.order)))
	sizeTable := buf[4:]
	body := buf[4+4*len(s.order):]
	written := 4 + 4*len(s.order)

	for i, pos := range s.order {
		n, err := s.values.CopySerializedTo(pos, body)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(sizeTable[4*i:], uint32(n))
		body = body[n:]
		written += n
	}
	return written, nil
}

func (s *opaqueDistinctSet) clear() {
	s.values.Free()
	s.mp.Release(s.reserved)
	s.reserved = 0
	s.buckets = make(map[uint64][]Position)
	s.order = s.order[:0]
}

func (s *opaqueDistinctSet) free() {
	s.values.Free()
	s.mp.Release(s.reserved)
	s.reserved = 0
	s.buckets = nil
	s.order = nil
}

func (s *opaqueDistinctSet) memSize() int64 {
	var chunkBytes int64
	for _, chunk := range s.values.chunks {
		chunkBytes += int64(cap(chunk))
	}
	return s.reserved + chunkBytes
}

// newDistinctSet picks the set body for an element type once, at
// accumulator construction time.
func newDistinctSet(elemType types.Type, newVec func() *vector.Vector, mp *mpool.MPool) (func() distinctSet, error) {
	switch elemType.Oid {
	case types.T_bool:
		return func() distinctSet { return newFixedDistinctSet[bool](elemType, mp) }, nil
	case types.T_int8:
		return func() distinctSet { return newFixedDistinctSet[int8](elemType, mp) }, nil
	case types.T_int16:
		return func() distinctSet { return newFixedDistinctSet[int16](elemType, mp) }, nil
	case types.T_int32:
		return func() distinctSet { return newFixedDistinctSet[int32](elemType, mp) }, nil
	case types.T_int64:
		return func() distinctSet { return newFixedDistinctSet[int64](elemType, mp) }, nil
	case types.T_uint8:
		return func() distinctSet { return newFixedDistinctSet[uint8](elemType, mp) }, nil
	case types.T_uint16:
		return func() distinctSet { return newFixedDistinctSet[uint16](elemType, mp) }, nil
	case types.T_uint32:
		return func() distinctSet { return newFixedDistinctSet[uint32](elemType, mp) }, nil
	case types.T_uint64:
		return func() distinctSet { return newFixedDistinctSet[uint64](elemType, mp) }, nil
	case types.T_float32:
		return func() distinctSet { return newFixedDistinctSet[float32](elemType, mp) }, nil
	case types.T_float64:
		return func() distinctSet { return newFixedDistinctSet[float64](elemType, mp) }, nil
	case types.T_uuid:
		return func() distinctSet { return newFixedDistinctSet[types.Uuid](elemType, mp) }, nil
	case types.T_decimal, types.T_varchar, types.T_varbinary, types.T_row:
		return func() distinctSet { return newOpaqueDistinctSet(mp, newVec) }, nil
	default:
		return nil, moerr.NewInvalidInputf("distinct over type %s is not supported", elemType)
	}
}
