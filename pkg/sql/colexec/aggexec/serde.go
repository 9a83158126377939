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

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

// Canonical single-value encoding. Every cell starts with one null
// byte; a null cell is that byte alone. Fixed kinds follow with their
// raw bytes, var-len kinds with a u32 length prefix, rows with each
// field cell back-to-back. Two cells are equal exactly when their
// encodings are byte-equal, with nulls comparing as values, so the
// uniqueness predicate and the hash both run over these bytes.

const (
	cellNotNull byte = 0
	cellNull    byte = 1
)

// cellHash is the value hash stored in front of every value-list record.
func cellHash(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

func serializeFixed[T types.FixedSizeT](buf []byte, vec *vector.Vector, row int) []byte {
	if vec.IsNull(uint64(row)) {
		return append(buf, cellNull)
	}
	buf = append(buf, cellNotNull)
	return append(buf, types.EncodeFixed(vector.MustFixedCol[T](vec)[row])...)
}

func serializeBytes(buf []byte, val []byte, isNull bool) []byte {
	if isNull {
		return append(buf, cellNull)
	}
	buf = append(buf, cellNotNull)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(val)))
	return append(buf, val...)
}

// serializeCell appends the canonical encoding of vec[row] to buf.
func serializeCell(buf []byte, vec *vector.Vector, row int) ([]byte, error) {
	switch vec.GetType().Oid {
	case types.T_bool:
		return serializeFixed[bool](buf, vec, row), nil
	case types.T_int8:
		return serializeFixed[int8](buf, vec, row), nil
	case types.T_int16:
		return serializeFixed[int16](buf, vec, row), nil
	case types.T_int32:
		return serializeFixed[int32](buf, vec, row), nil
	case types.T_int64:
		return serializeFixed[int64](buf, vec, row), nil
	case types.T_uint8:
		return serializeFixed[uint8](buf, vec, row), nil
	case types.T_uint16:
		return serializeFixed[uint16](buf, vec, row), nil
	case types.T_uint32:
		return serializeFixed[uint32](buf, vec, row), nil
	case types.T_uint64:
		return serializeFixed[uint64](buf, vec, row), nil
	case types.T_float32:
		return serializeFixed[float32](buf, vec, row), nil
	case types.T_float64:
		return serializeFixed[float64](buf, vec, row), nil
	case types.T_uuid:
		return serializeFixed[types.Uuid](buf, vec, row), nil
	case types.T_decimal:
		if vec.IsNull(uint64(row)) {
			return append(buf, cellNull), nil
		}
		// String() is the normalized form, so equal decimals with
		// different internal exponents encode identically.
		return serializeBytes(buf, []byte(vec.GetDecimalAt(row).String()), false), nil
	case types.T_varchar, types.T_varbinary:
		return serializeBytes(buf, vec.GetBytesAt(row), vec.IsNull(uint64(row))), nil
	case types.T_row:
		buf = append(buf, cellNotNull)
		var err error
		for _, child := range vec.Children() {
			if buf, err = serializeCell(buf, child, row); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, moerr.NewNYIf("serialize value of type %s", vec.GetType())
	}
}

func deserializeFixed[T types.FixedSizeT](data []byte, dst *vector.Vector, mp *mpool.MPool) ([]byte, error) {
	var zero T
	sz := len(types.EncodeFixed(zero))
	if len(data) < sz {
		return nil, moerr.NewInternalErrorf("truncated fixed cell: want %d bytes, have %d", sz, len(data))
	}
	if err := vector.AppendFixed(dst, types.DecodeFixed[T](data[:sz]), false, mp); err != nil {
		return nil, err
	}
	return data[sz:], nil
}

func readBytesBody(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, moerr.NewInternalError("truncated var-len cell header")
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, moerr.NewInternalErrorf("truncated var-len cell: want %d bytes, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}

// deserializeCell appends the cell at the front of data to dst and
// returns the remaining bytes.
func deserializeCell(data []byte, dst *vector.Vector, mp *mpool.MPool) ([]byte, error) {
	if len(data) == 0 {
		return nil, moerr.NewInternalError("empty cell")
	}
	isNull := data[0] == cellNull
	data = data[1:]

	oid := dst.GetType().Oid
	if isNull && oid != types.T_row {
		return data, appendNull(dst, mp)
	}

	switch oid {
	case types.T_bool:
		return deserializeFixed[bool](data, dst, mp)
	case types.T_int8:
		return deserializeFixed[int8](data, dst, mp)
	case types.T_int16:
		return deserializeFixed[int16](data, dst, mp)
	case types.T_int32:
		return deserializeFixed[int32](data, dst, mp)
	case types.T_int64:
		return deserializeFixed[int64](data, dst, mp)
	case types.T_uint8:
		return deserializeFixed[uint8](data, dst, mp)
	case types.T_uint16:
		return deserializeFixed[uint16](data, dst, mp)
	case types.T_uint32:
		return deserializeFixed[uint32](data, dst, mp)
	case types.T_uint64:
		return deserializeFixed[uint64](data, dst, mp)
	case types.T_float32:
		return deserializeFixed[float32](data, dst, mp)
	case types.T_float64:
		return deserializeFixed[float64](data, dst, mp)
	case types.T_uuid:
		return deserializeFixed[types.Uuid](data, dst, mp)
	case types.T_decimal:
		body, rest, err := readBytesBody(data)
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(string(body))
		if err != nil {
			return nil, moerr.NewInternalErrorf("bad decimal cell: %v", err)
		}
		return rest, vector.AppendDecimal(dst, d, false, mp)
	case types.T_varchar, types.T_varbinary:
		body, rest, err := readBytesBody(data)
		if err != nil {
			return nil, err
		}
		return rest, vector.AppendBytes(dst, body, false, mp)
	case types.T_row:
		var err error
		for _, child := range dst.Children() {
			if data, err = deserializeCell(data, child, mp); err != nil {
				return nil, err
			}
		}
		return data, nil
	default:
		return nil, moerr.NewNYIf("deserialize value of type %s", dst.GetType())
	}
}

func appendNull(dst *vector.Vector, mp *mpool.MPool) error {
	switch dst.GetType().Oid {
	case types.T_decimal:
		return vector.AppendDecimal(dst, types.Decimal{}, true, mp)
	case types.T_varchar, types.T_varbinary:
		return vector.AppendBytes(dst, nil, true, mp)
	case types.T_bool:
		return vector.AppendFixed(dst, false, true, mp)
	case types.T_int8:
		return vector.AppendFixed(dst, int8(0), true, mp)
	case types.T_int16:
		return vector.AppendFixed(dst, int16(0), true, mp)
	case types.T_int32:
		return vector.AppendFixed(dst, int32(0), true, mp)
	case types.T_int64:
		return vector.AppendFixed(dst, int64(0), true, mp)
	case types.T_uint8:
		return vector.AppendFixed(dst, uint8(0), true, mp)
	case types.T_uint16:
		return vector.AppendFixed(dst, uint16(0), true, mp)
	case types.T_uint32:
		return vector.AppendFixed(dst, uint32(0), true, mp)
	case types.T_uint64:
		return vector.AppendFixed(dst, uint64(0), true, mp)
	case types.T_float32:
		return vector.AppendFixed(dst, float32(0), true, mp)
	case types.T_float64:
		return vector.AppendFixed(dst, float64(0), true, mp)
	case types.T_uuid:
		return vector.AppendFixed(dst, types.Uuid{}, true, mp)
	default:
		return moerr.NewNYIf("append null of type %s", dst.GetType())
	}
}
