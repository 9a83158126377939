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

// Package types declares the column type system of the engine.
package types

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// T is the type kind.
type T uint8

const (
	T_any T = iota

	T_bool
	T_int8
	T_int16
	T_int32
	T_int64
	T_uint8
	T_uint16
	T_uint32
	T_uint64
	T_float32
	T_float64
	T_uuid

	// var-len kinds
	T_decimal
	T_varchar
	T_varbinary

	// T_row is a composite of several columns treated as one logical
	// element, used when DISTINCT covers more than one input column.
	T_row
)

// Type describes one column.
type Type struct {
	Oid  T
	Size int32
}

// Uuid is a fixed 16-byte value.
type Uuid [16]byte

// Decimal is an arbitrary-precision decimal value.
type Decimal = decimal.Decimal

// ParseUuid parses the canonical string form.
func ParseUuid(s string) (Uuid, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Uuid{}, err
	}
	return Uuid(u), nil
}

func (u Uuid) String() string {
	return uuid.UUID(u).String()
}

var typeSizes = map[T]int32{
	T_bool:    1,
	T_int8:    1,
	T_int16:   2,
	T_int32:   4,
	T_int64:   8,
	T_uint8:   1,
	T_uint16:  2,
	T_uint32:  4,
	T_uint64:  8,
	T_float32: 4,
	T_float64: 8,
	T_uuid:    16,
}

var typeNames = map[T]string{
	T_any:       "any",
	T_bool:      "bool",
	T_int8:      "tinyint",
	T_int16:     "smallint",
	T_int32:     "int",
	T_int64:     "bigint",
	T_uint8:     "tinyint unsigned",
	T_uint16:    "smallint unsigned",
	T_uint32:    "int unsigned",
	T_uint64:    "bigint unsigned",
	T_float32:   "float",
	T_float64:   "double",
	T_uuid:      "uuid",
	T_decimal:   "decimal",
	T_varchar:   "varchar",
	T_varbinary: "varbinary",
	T_row:       "row",
}

func (t T) ToType() Type {
	return Type{Oid: t, Size: typeSizes[t]}
}

func (t T) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("T(%d)", t)
}

// FixedLength reports whether the kind stores inline fixed-size values.
func (t T) FixedLength() bool {
	_, ok := typeSizes[t]
	return ok
}

func (t Type) String() string {
	return t.Oid.String()
}

// TypeSize returns the inline byte width, 0 for var-len kinds.
func (t Type) TypeSize() int {
	return int(t.Size)
}

func (t Type) IsFixedLen() bool {
	return t.Oid.FixedLength()
}

// FixedSizeT covers the kinds whose values are raw fixed-width bytes.
type FixedSizeT interface {
	bool | int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64 | Uuid
}

// TypeOf maps a Go element type to its column kind. It is the inverse of
// the kind switch used by vectors and the distinct-set factory.
func TypeOf[T FixedSizeT]() Type {
	var v T
	switch any(v).(type) {
	case bool:
		return T_bool.ToType()
	case int8:
		return T_int8.ToType()
	case int16:
		return T_int16.ToType()
	case int32:
		return T_int32.ToType()
	case int64:
		return T_int64.ToType()
	case uint8:
		return T_uint8.ToType()
	case uint16:
		return T_uint16.ToType()
	case uint32:
		return T_uint32.ToType()
	case uint64:
		return T_uint64.ToType()
	case float32:
		return T_float32.ToType()
	case float64:
		return T_float64.ToType()
	default:
		return T_uuid.ToType()
	}
}
