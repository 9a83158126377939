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

// Package vector implements the in-memory columnar value container.
package vector

import (
	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/nulls"
	"github.com/vexdb/vex/pkg/container/types"
)

// bytesOverhead approximates the slice header cost charged per var-len cell.
const bytesOverhead = 24

// Vector is one column of values. Fixed-width kinds store a typed
// slice, var-len kinds a [][]byte, decimals a []types.Decimal, and
// T_row holds child vectors forming a composite element per row.
type Vector struct {
	typ types.Type
	nsp *nulls.Nulls

	col      any
	children []*Vector

	length   int
	reserved int64
}

func NewVector(typ types.Type) *Vector {
	v := &Vector{typ: typ, nsp: &nulls.Nulls{}}
	switch typ.Oid {
	case types.T_bool:
		v.col = []bool(nil)
	case types.T_int8:
		v.col = []int8(nil)
	case types.T_int16:
		v.col = []int16(nil)
	case types.T_int32:
		v.col = []int32(nil)
	case types.T_int64:
		v.col = []int64(nil)
	case types.T_uint8:
		v.col = []uint8(nil)
	case types.T_uint16:
		v.col = []uint16(nil)
	case types.T_uint32:
		v.col = []uint32(nil)
	case types.T_uint64:
		v.col = []uint64(nil)
	case types.T_float32:
		v.col = []float32(nil)
	case types.T_float64:
		v.col = []float64(nil)
	case types.T_uuid:
		v.col = []types.Uuid(nil)
	case types.T_decimal:
		v.col = []types.Decimal(nil)
	case types.T_varchar, types.T_varbinary:
		v.col = [][]byte(nil)
	case types.T_row:
		// children attached by NewRowVector or AppendChild
	}
	return v
}

// NewRowVector builds a composite vector over the given children. The
// children keep their own types and nulls; the row itself is never null.
func NewRowVector(children []*Vector) *Vector {
	return &Vector{
		typ:      types.Type{Oid: types.T_row},
		nsp:      &nulls.Nulls{},
		children: children,
	}
}

func (v *Vector) GetType() types.Type {
	return v.typ
}

func (v *Vector) GetNulls() *nulls.Nulls {
	return v.nsp
}

func (v *Vector) IsNull(row uint64) bool {
	return v.nsp.Contains(row)
}

func (v *Vector) Children() []*Vector {
	return v.children
}

func (v *Vector) Length() int {
	if v.typ.Oid == types.T_row && len(v.children) > 0 {
		return v.children[0].Length()
	}
	return v.length
}

// MustFixedCol views the column of a fixed-width vector.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	return v.col.([]T)
}

func MustBytesCol(v *Vector) [][]byte {
	return v.col.([][]byte)
}

func MustDecimalCol(v *Vector) []types.Decimal {
	return v.col.([]types.Decimal)
}

// GetBytesAt returns the var-len cell at row. Null cells read as empty.
func (v *Vector) GetBytesAt(row int) []byte {
	return v.col.([][]byte)[row]
}

// GetDecimalAt returns the decimal cell at row.
func (v *Vector) GetDecimalAt(row int) types.Decimal {
	return v.col.([]types.Decimal)[row]
}

func (v *Vector) reserve(mp *mpool.MPool, sz int64) error {
	if err := mp.Reserve(sz); err != nil {
		return err
	}
	v.reserved += sz
	return nil
}

// AppendFixed appends one fixed-width value (or a null).
func AppendFixed[T types.FixedSizeT](v *Vector, val T, isNull bool, mp *mpool.MPool) error {
	var zero T
	if err := v.reserve(mp, int64(len(types.EncodeFixed(zero)))); err != nil {
		return err
	}
	if isNull {
		v.nsp.Add(uint64(v.length))
		val = zero
	}
	v.col = append(v.col.([]T), val)
	v.length++
	return nil
}

// AppendBytes appends one var-len value (or a null). The bytes are copied.
func AppendBytes(v *Vector, val []byte, isNull bool, mp *mpool.MPool) error {
	if err := v.reserve(mp, int64(len(val))+bytesOverhead); err != nil {
		return err
	}
	var owned []byte
	if !isNull {
		owned = make([]byte, len(val))
		copy(owned, val)
	} else {
		v.nsp.Add(uint64(v.length))
	}
	v.col = append(v.col.([][]byte), owned)
	v.length++
	return nil
}

// AppendDecimal appends one decimal value (or a null).
func AppendDecimal(v *Vector, val types.Decimal, isNull bool, mp *mpool.MPool) error {
	if err := v.reserve(mp, bytesOverhead); err != nil {
		return err
	}
	if isNull {
		v.nsp.Add(uint64(v.length))
		val = types.Decimal{}
	}
	v.col = append(v.col.([]types.Decimal), val)
	v.length++
	return nil
}

// UnionOne copies the cell src[row] onto the end of v. The two vectors
// must share a type.
func UnionOne(v, src *Vector, row int, mp *mpool.MPool) error {
	if v.typ.Oid != src.typ.Oid {
		return moerr.NewInternalErrorf("union %s into %s", src.typ, v.typ)
	}
	isNull := src.IsNull(uint64(row))
	switch v.typ.Oid {
	case types.T_bool:
		return AppendFixed(v, MustFixedCol[bool](src)[row], isNull, mp)
	case types.T_int8:
		return AppendFixed(v, MustFixedCol[int8](src)[row], isNull, mp)
	case types.T_int16:
		return AppendFixed(v, MustFixedCol[int16](src)[row], isNull, mp)
	case types.T_int32:
		return AppendFixed(v, MustFixedCol[int32](src)[row], isNull, mp)
	case types.T_int64:
		return AppendFixed(v, MustFixedCol[int64](src)[row], isNull, mp)
	case types.T_uint8:
		return AppendFixed(v, MustFixedCol[uint8](src)[row], isNull, mp)
	case types.T_uint16:
		return AppendFixed(v, MustFixedCol[uint16](src)[row], isNull, mp)
	case types.T_uint32:
		return AppendFixed(v, MustFixedCol[uint32](src)[row], isNull, mp)
	case types.T_uint64:
		return AppendFixed(v, MustFixedCol[uint64](src)[row], isNull, mp)
	case types.T_float32:
		return AppendFixed(v, MustFixedCol[float32](src)[row], isNull, mp)
	case types.T_float64:
		return AppendFixed(v, MustFixedCol[float64](src)[row], isNull, mp)
	case types.T_uuid:
		return AppendFixed(v, MustFixedCol[types.Uuid](src)[row], isNull, mp)
	case types.T_decimal:
		return AppendDecimal(v, src.GetDecimalAt(row), isNull, mp)
	case types.T_varchar, types.T_varbinary:
		return AppendBytes(v, src.GetBytesAt(row), isNull, mp)
	case types.T_row:
		if len(v.children) != len(src.children) {
			return moerr.NewInternalErrorf("union row with %d children into %d", len(src.children), len(v.children))
		}
		for i := range v.children {
			if err := UnionOne(v.children[i], src.children[i], row, mp); err != nil {
				return err
			}
		}
		return nil
	default:
		return moerr.NewNYIf("union for type %s", v.typ)
	}
}

// Size reports the bytes charged to the pool for this vector.
func (v *Vector) Size() int64 {
	sz := v.reserved + v.nsp.Size()
	for _, child := range v.children {
		sz += child.Size()
	}
	return sz
}

// Free releases the vector's accounting and drops its storage.
func (v *Vector) Free(mp *mpool.MPool) {
	mp.Release(v.reserved)
	v.reserved = 0
	v.col = nil
	v.length = 0
	v.nsp = &nulls.Nulls{}
	for _, child := range v.children {
		child.Free(mp)
	}
}
