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

// Package nulls tracks the NULL rows of one column as a bitmap.
package nulls

import (
	"github.com/RoaringBitmap/roaring"
)

type Nulls struct {
	np *roaring.Bitmap
}

func NewWithSize(_ int) *Nulls {
	return &Nulls{}
}

// Any reports whether the column has any null at all.
func (nsp *Nulls) Any() bool {
	return nsp != nil && nsp.np != nil && !nsp.np.IsEmpty()
}

func (nsp *Nulls) Contains(row uint64) bool {
	return nsp != nil && nsp.np != nil && nsp.np.Contains(uint32(row))
}

func (nsp *Nulls) Add(rows ...uint64) {
	if nsp.np == nil {
		nsp.np = roaring.New()
	}
	for _, row := range rows {
		nsp.np.Add(uint32(row))
	}
}

func (nsp *Nulls) Count() int {
	if nsp == nil || nsp.np == nil {
		return 0
	}
	return int(nsp.np.GetCardinality())
}

func (nsp *Nulls) Reset() {
	if nsp.np != nil {
		nsp.np.Clear()
	}
}

func (nsp *Nulls) Clone() *Nulls {
	if nsp == nil || nsp.np == nil {
		return &Nulls{}
	}
	return &Nulls{np: nsp.np.Clone()}
}

// Size reports the bitmap's heap bytes for pool accounting.
func (nsp *Nulls) Size() int64 {
	if nsp == nil || nsp.np == nil {
		return 0
	}
	return int64(nsp.np.GetSizeInBytes())
}
