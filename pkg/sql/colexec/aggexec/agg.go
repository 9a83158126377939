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

	"github.com/axiomhq/hyperloglog"
	"golang.org/x/exp/constraints"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

// MakeAgg builds the executor for one aggregate function id over the
// given argument types.
func MakeAgg(mp *mpool.MPool, aggID int64, argTypes []types.Type) (AggFuncExec, error) {
	if len(argTypes) == 0 {
		return nil, moerr.NewInvalidInputf("aggregate %d called without arguments", aggID)
	}
	switch aggID {
	case AggIdOfCount:
		return &countExec{mp: mp, argTypes: argTypes}, nil
	case AggIdOfSum:
		return makeSum(mp, argTypes[0])
	case AggIdOfMin:
		return makeMinMax(mp, argTypes[0], false)
	case AggIdOfMax:
		return makeMinMax(mp, argTypes[0], true)
	case AggIdOfApproxCount:
		return &approxCountExec{mp: mp, argTypes: argTypes}, nil
	default:
		return nil, moerr.NewInvalidInputf("unknown aggregate function id %d", aggID)
	}
}

func makeSum(mp *mpool.MPool, argType types.Type) (AggFuncExec, error) {
	switch argType.Oid {
	case types.T_int8:
		return newSumExec[int8, int64](mp, argType), nil
	case types.T_int16:
		return newSumExec[int16, int64](mp, argType), nil
	case types.T_int32:
		return newSumExec[int32, int64](mp, argType), nil
	case types.T_int64:
		return newSumExec[int64, int64](mp, argType), nil
	case types.T_uint8:
		return newSumExec[uint8, uint64](mp, argType), nil
	case types.T_uint16:
		return newSumExec[uint16, uint64](mp, argType), nil
	case types.T_uint32:
		return newSumExec[uint32, uint64](mp, argType), nil
	case types.T_uint64:
		return newSumExec[uint64, uint64](mp, argType), nil
	case types.T_float32:
		return newSumExec[float32, float64](mp, argType), nil
	case types.T_float64:
		return newSumExec[float64, float64](mp, argType), nil
	case types.T_decimal:
		return &decimalSumExec{mp: mp, argType: argType}, nil
	default:
		return nil, moerr.NewInvalidInputf("sum does not support type %s", argType)
	}
}

func makeMinMax(mp *mpool.MPool, argType types.Type, isMax bool) (AggFuncExec, error) {
	switch argType.Oid {
	case types.T_int8:
		return newMinMaxExec[int8](mp, argType, isMax), nil
	case types.T_int16:
		return newMinMaxExec[int16](mp, argType, isMax), nil
	case types.T_int32:
		return newMinMaxExec[int32](mp, argType, isMax), nil
	case types.T_int64:
		return newMinMaxExec[int64](mp, argType, isMax), nil
	case types.T_uint8:
		return newMinMaxExec[uint8](mp, argType, isMax), nil
	case types.T_uint16:
		return newMinMaxExec[uint16](mp, argType, isMax), nil
	case types.T_uint32:
		return newMinMaxExec[uint32](mp, argType, isMax), nil
	case types.T_uint64:
		return newMinMaxExec[uint64](mp, argType, isMax), nil
	case types.T_float32:
		return newMinMaxExec[float32](mp, argType, isMax), nil
	case types.T_float64:
		return newMinMaxExec[float64](mp, argType, isMax), nil
	case types.T_varchar, types.T_varbinary:
		return &bytesMinMaxExec{mp: mp, argType: argType, isMax: isMax}, nil
	default:
		return nil, moerr.NewInvalidInputf("min/max does not support type %s", argType)
	}
}

// numeric is the fixed-width kinds carrying a total order.
type numeric interface {
	types.FixedSizeT
	constraints.Ordered
}

// fillLoop drives Fill over the three fill entry points so each
// executor only writes the per-row update.
type fillLoop struct{ exec AggFuncExec }

func (f fillLoop) bulkFill(group int, vectors []*vector.Vector) error {
	n := 0
	if len(vectors) > 0 {
		n = vectors[0].Length()
	}
	for row := 0; row < n; row++ {
		if err := f.exec.Fill(group, row, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (f fillLoop) batchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	for i, g := range groups {
		if g == GroupNotMatched {
			continue
		}
		if err := f.exec.Fill(int(g-1), offset+i, vectors); err != nil {
			return err
		}
	}
	return nil
}

// countExec counts the rows where no argument is null.
type countExec struct {
	mp       *mpool.MPool
	argTypes []types.Type
	counts   []int64
}

func (e *countExec) TypesInfo() ([]types.Type, types.Type) {
	return e.argTypes, types.T_int64.ToType()
}

func (e *countExec) GroupGrow(more int) error {
	e.counts = append(e.counts, make([]int64, more)...)
	return nil
}

func (e *countExec) Fill(group int, row int, vectors []*vector.Vector) error {
	for _, vec := range vectors {
		if vec.IsNull(uint64(row)) {
			return nil
		}
	}
	e.counts[group]++
	return nil
}

func (e *countExec) BulkFill(group int, vectors []*vector.Vector) error {
	return fillLoop{e}.bulkFill(group, vectors)
}

func (e *countExec) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	return fillLoop{e}.batchFill(offset, groups, vectors)
}

func (e *countExec) Flush() (*vector.Vector, error) {
	out := vector.NewVector(types.T_int64.ToType())
	for _, c := range e.counts {
		if err := vector.AppendFixed(out, c, false, e.mp); err != nil {
			out.Free(e.mp)
			return nil, err
		}
	}
	return out, nil
}

func (e *countExec) Free() { e.counts = nil }

// sumExec sums T into the wider R; an empty group flushes null.
type sumExec[T numeric, R int64 | uint64 | float64] struct {
	mp      *mpool.MPool
	argType types.Type
	sums    []R
	seen    []bool
}

func newSumExec[T numeric, R int64 | uint64 | float64](
	mp *mpool.MPool, argType types.Type,
) *sumExec[T, R] {
	return &sumExec[T, R]{mp: mp, argType: argType}
}

func (e *sumExec[T, R]) TypesInfo() ([]types.Type, types.Type) {
	return []types.Type{e.argType}, types.TypeOf[R]()
}

func (e *sumExec[T, R]) GroupGrow(more int) error {
	e.sums = append(e.sums, make([]R, more)...)
	e.seen = append(e.seen, make([]bool, more)...)
	return nil
}

func (e *sumExec[T, R]) Fill(group int, row int, vectors []*vector.Vector) error {
	vec := vectors[0]
	if vec.IsNull(uint64(row)) {
		return nil
	}
	e.sums[group] += R(vector.MustFixedCol[T](vec)[row])
	e.seen[group] = true
	return nil
}

func (e *sumExec[T, R]) BulkFill(group int, vectors []*vector.Vector) error {
	return fillLoop{e}.bulkFill(group, vectors)
}

func (e *sumExec[T, R]) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	return fillLoop{e}.batchFill(offset, groups, vectors)
}

func (e *sumExec[T, R]) Flush() (*vector.Vector, error) {
	out := vector.NewVector(types.TypeOf[R]())
	for g, s := range e.sums {
		if err := vector.AppendFixed(out, s, !e.seen[g], e.mp); err != nil {
			out.Free(e.mp)
			return nil, err
		}
	}
	return out, nil
}

func (e *sumExec[T, R]) Free() {
	e.sums = nil
	e.seen = nil
}

// decimalSumExec sums decimals exactly.
type decimalSumExec struct {
	mp      *mpool.MPool
	argType types.Type
	sums    []types.Decimal
	seen    []bool
}

func (e *decimalSumExec) TypesInfo() ([]types.Type, types.Type) {
	return []types.Type{e.argType}, e.argType
}

func (e *decimalSumExec) GroupGrow(more int) error {
	e.sums = append(e.sums, make([]types.Decimal, more)...)
	e.seen = append(e.seen, make([]bool, more)...)
	return nil
}

func (e *decimalSumExec) Fill(group int, row int, vectors []*vector.Vector) error {
	vec := vectors[0]
	if vec.IsNull(uint64(row)) {
		return nil
	}
	e.sums[group] = e.sums[group].Add(vec.GetDecimalAt(row))
	e.seen[group] = true
	return nil
}

func (e *decimalSumExec) BulkFill(group int, vectors []*vector.Vector) error {
	return fillLoop{e}.bulkFill(group, vectors)
}

func (e *decimalSumExec) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	return fillLoop{e}.batchFill(offset, groups, vectors)
}

func (e *decimalSumExec) Flush() (*vector.Vector, error) {
	out := vector.NewVector(e.argType)
	for g, s := range e.sums {
		if err := vector.AppendDecimal(out, s, !e.seen[g], e.mp); err != nil {
			out.Free(e.mp)
			return nil, err
		}
	}
	return out, nil
}

func (e *decimalSumExec) Free() {
	e.sums = nil
	e.seen = nil
}

// minMaxExec keeps the extreme of an ordered fixed type per group.
type minMaxExec[T numeric] struct {
	mp      *mpool.MPool
	argType types.Type
	isMax   bool
	best    []T
	seen    []bool
}

func newMinMaxExec[T numeric](
	mp *mpool.MPool, argType types.Type, isMax bool,
) *minMaxExec[T] {
	return &minMaxExec[T]{mp: mp, argType: argType, isMax: isMax}
}

func (e *minMaxExec[T]) TypesInfo() ([]types.Type, types.Type) {
	return []types.Type{e.argType}, e.argType
}

func (e *minMaxExec[T]) GroupGrow(more int) error {
	e.best = append(e.best, make([]T, more)...)
	e.seen = append(e.seen, make([]bool, more)...)
	return nil
}

func (e *minMaxExec[T]) Fill(group int, row int, vectors []*vector.Vector) error {
	vec := vectors[0]
	if vec.IsNull(uint64(row)) {
		return nil
	}
	val := vector.MustFixedCol[T](vec)[row]
	if !e.seen[group] || (e.isMax && val > e.best[group]) || (!e.isMax && val < e.best[group]) {
		e.best[group] = val
	}
	e.seen[group] = true
	return nil
}

func (e *minMaxExec[T]) BulkFill(group int, vectors []*vector.Vector) error {
	return fillLoop{e}.bulkFill(group, vectors)
}

func (e *minMaxExec[T]) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	return fillLoop{e}.batchFill(offset, groups, vectors)
}

func (e *minMaxExec[T]) Flush() (*vector.Vector, error) {
	out := vector.NewVector(e.argType)
	for g, b := range e.best {
		if err := vector.AppendFixed(out, b, !e.seen[g], e.mp); err != nil {
			out.Free(e.mp)
			return nil, err
		}
	}
	return out, nil
}

func (e *minMaxExec[T]) Free() {
	e.best = nil
	e.seen = nil
}

// bytesMinMaxExec keeps the extreme byte string per group.
type bytesMinMaxExec struct {
	mp      *mpool.MPool
	argType types.Type
	isMax   bool
	best    [][]byte
	seen    []bool
}

func (e *bytesMinMaxExec) TypesInfo() ([]types.Type, types.Type) {
	return []types.Type{e.argType}, e.argType
}

func (e *bytesMinMaxExec) GroupGrow(more int) error {
	e.best = append(e.best, make([][]byte, more)...)
	e.seen = append(e.seen, make([]bool, more)...)
	return nil
}

func (e *bytesMinMaxExec) Fill(group int, row int, vectors []*vector.Vector) error {
	vec := vectors[0]
	if vec.IsNull(uint64(row)) {
		return nil
	}
	val := vec.GetBytesAt(row)
	if !e.seen[group] ||
		(e.isMax && bytes.Compare(val, e.best[group]) > 0) ||
		(!e.isMax && bytes.Compare(val, e.best[group]) < 0) {
		e.best[group] = append(e.best[group][:0], val...)
	}
	e.seen[group] = true
	return nil
}

func (e *bytesMinMaxExec) BulkFill(group int, vectors []*vector.Vector) error {
	return fillLoop{e}.bulkFill(group, vectors)
}

func (e *bytesMinMaxExec) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	return fillLoop{e}.batchFill(offset, groups, vectors)
}

func (e *bytesMinMaxExec) Flush() (*vector.Vector, error) {
	out := vector.NewVector(e.argType)
	for g, b := range e.best {
		if err := vector.AppendBytes(out, b, !e.seen[g], e.mp); err != nil {
			out.Free(e.mp)
			return nil, err
		}
	}
	return out, nil
}

func (e *bytesMinMaxExec) Free() {
	e.best = nil
	e.seen = nil
}

// approxCountExec estimates the distinct count per group with a
// hyperloglog sketch over the canonical cell encoding, so two values
// that compare equal always feed the sketch identical bytes.
type approxCountExec struct {
	mp       *mpool.MPool
	argTypes []types.Type
	sketches []*hyperloglog.Sketch
	scratch  []byte
}

func (e *approxCountExec) TypesInfo() ([]types.Type, types.Type) {
	return e.argTypes, types.T_uint64.ToType()
}

func (e *approxCountExec) GroupGrow(more int) error {
	for i := 0; i < more; i++ {
		e.sketches = append(e.sketches, hyperloglog.New14())
	}
	return nil
}

func (e *approxCountExec) Fill(group int, row int, vectors []*vector.Vector) error {
	buf := e.scratch[:0]
	var err error
	for _, vec := range vectors {
		if buf, err = serializeCell(buf, vec, row); err != nil {
			return err
		}
	}
	e.scratch = buf[:0]
	e.sketches[group].Insert(buf)
	return nil
}

func (e *approxCountExec) BulkFill(group int, vectors []*vector.Vector) error {
	return fillLoop{e}.bulkFill(group, vectors)
}

func (e *approxCountExec) BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error {
	return fillLoop{e}.batchFill(offset, groups, vectors)
}

func (e *approxCountExec) Flush() (*vector.Vector, error) {
	out := vector.NewVector(types.T_uint64.ToType())
	for _, sk := range e.sketches {
		if err := vector.AppendFixed(out, sk.Estimate(), false, e.mp); err != nil {
			out.Free(e.mp)
			return nil, err
		}
	}
	return out, nil
}

func (e *approxCountExec) Free() {
	e.sketches = nil
	e.scratch = nil
}
