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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

func testInt64Vector(t *testing.T, mp *mpool.MPool, vals []int64, nullRows ...int) *vector.Vector {
	v := vector.NewVector(types.T_int64.ToType())
	isNull := make(map[int]bool, len(nullRows))
	for _, r := range nullRows {
		isNull[r] = true
	}
	for i, val := range vals {
		require.NoError(t, vector.AppendFixed(v, val, isNull[i], mp))
	}
	return v
}

func TestFixedSetDedup(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	set := newFixedDistinctSet[int64](types.T_int64.ToType(), mp)
	src := testInt64Vector(t, mp, []int64{5, 5, 7, 5})

	added, err := set.addValue(src, 0)
	require.NoError(t, err)
	require.True(t, added)
	added, err = set.addValue(src, 1)
	require.NoError(t, err)
	require.False(t, added)
	added, err = set.addValue(src, 2)
	require.NoError(t, err)
	require.True(t, added)
	added, err = set.addValue(src, 3)
	require.NoError(t, err)
	require.False(t, added)

	require.Equal(t, 2, set.size())
	out, err := set.extractValues()
	require.NoError(t, err)
	require.Equal(t, []int64{5, 7}, vector.MustFixedCol[int64](out))

	out.Free(mp)
	src.Free(mp)
	set.free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestFixedSetNullIsOneValue(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	set := newFixedDistinctSet[int64](types.T_int64.ToType(), mp)
	src := testInt64Vector(t, mp, []int64{0, 1, 0}, 0, 2)

	for row := 0; row < src.Length(); row++ {
		_, err := set.addValue(src, row)
		require.NoError(t, err)
	}
	require.Equal(t, 2, set.size())

	out, err := set.extractValues()
	require.NoError(t, err)
	require.True(t, out.IsNull(0))
	require.False(t, out.IsNull(1))
	require.Equal(t, int64(1), vector.MustFixedCol[int64](out)[1])

	out.Free(mp)
	src.Free(mp)
	set.free()
}

func TestFixedSetSpillRoundTrip(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	set := newFixedDistinctSet[int64](types.T_int64.ToType(), mp)
	src := testInt64Vector(t, mp, []int64{3, 0, 9}, 1)
	for row := 0; row < src.Length(); row++ {
		_, err := set.addValue(src, row)
		require.NoError(t, err)
	}

	buf := make([]byte, set.maxSpillSize())
	n, err := set.extractForSpill(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	_, err = set.extractForSpill(buf[:n-1])
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrShortBuffer))

	set.clear()
	require.Equal(t, 0, set.size())
	require.Equal(t, int64(0), set.memSize())

	require.NoError(t, set.addFromSpill(buf[:n]))
	require.Equal(t, 3, set.size())

	// Restoring is idempotent against values already present.
	require.NoError(t, set.addFromSpill(buf[:n]))
	require.Equal(t, 3, set.size())

	out, err := set.extractValues()
	require.NoError(t, err)
	require.Equal(t, int64(3), vector.MustFixedCol[int64](out)[0])
	require.True(t, out.IsNull(1))
	require.Equal(t, int64(9), vector.MustFixedCol[int64](out)[2])

	out.Free(mp)
	src.Free(mp)
	set.free()
}

func TestOpaqueSetDedup(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	newVec := func() *vector.Vector { return vector.NewVector(types.T_varchar.ToType()) }
	set := newOpaqueDistinctSet(mp, newVec)
	src := testBytesVector(t, mp, "a", "b", "a", "")

	want := []bool{true, true, false, true}
	for row := 0; row < src.Length(); row++ {
		added, err := set.addValue(src, row)
		require.NoError(t, err)
		require.Equal(t, want[row], added, "row %d", row)
	}
	require.Equal(t, 3, set.size())

	out, err := set.extractValues()
	require.NoError(t, err)
	require.Equal(t, []byte("a"), out.GetBytesAt(0))
	require.Equal(t, []byte("b"), out.GetBytesAt(1))
	require.Equal(t, []byte(""), out.GetBytesAt(2))

	out.Free(mp)
	src.Free(mp)
	set.free()
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestOpaqueSetSpillRoundTrip(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	newVec := func() *vector.Vector { return vector.NewVector(types.T_varchar.ToType()) }
	set := newOpaqueDistinctSet(mp, newVec)
	src := testBytesVector(t, mp, "one", "two", "three")
	for row := 0; row < src.Length(); row++ {
		_, err := set.addValue(src, row)
		require.NoError(t, err)
	}

	buf := make([]byte, set.maxSpillSize())
	n, err := set.extractForSpill(buf)
	require.NoError(t, err)

	set.clear()
	require.Equal(t, 0, set.size())

	require.NoError(t, set.addFromSpill(buf[:n]))
	require.Equal(t, 3, set.size())
	require.NoError(t, set.addFromSpill(buf[:n]))
	require.Equal(t, 3, set.size())

	out, err := set.extractValues()
	require.NoError(t, err)
	require.Equal(t, []byte("one"), out.GetBytesAt(0))
	require.Equal(t, []byte("three"), out.GetBytesAt(2))

	out.Free(mp)
	src.Free(mp)
	set.free()
}

func TestSpillCellTruncated(t *testing.T) {
	err := forEachSpillRecord([]byte{1}, func([]byte) error { return nil })
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	// Count says one record but the size table is missing.
	err = forEachSpillRecord([]byte{1, 0, 0, 0}, func([]byte) error { return nil })
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestNewDistinctSetUnsupported(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	_, err := newDistinctSet(types.Type{Oid: types.T_any}, nil, mp)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}
