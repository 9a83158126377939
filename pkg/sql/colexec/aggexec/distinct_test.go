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
	"github.com/vexdb/vex/pkg/container/batch"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

func newCountDistinct(t *testing.T, mp *mpool.MPool, inputTypes []types.Type, inputs []int) DistinctAggregations {
	exec, err := MakeAgg(mp, AggIdOfCount, inputTypesOf(inputTypes, inputs))
	require.NoError(t, err)
	da, err := NewDistinctAggregations(
		[]AggregateInfo{{Exec: exec, Inputs: inputs, Output: 0}},
		inputTypes, mp,
	)
	require.NoError(t, err)
	return da
}

func inputTypesOf(all []types.Type, inputs []int) []types.Type {
	out := make([]types.Type, len(inputs))
	for i, col := range inputs {
		out[i] = all[col]
	}
	return out
}

func TestCountDistinctTwoGroups(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})

	require.NoError(t, da.InitializeNewGroups([]int{0, 1}))

	// Group 1 sees 5,5,7,5 and group 2 sees 7.
	require.NoError(t, da.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{5, 5, 7, 5}),
	}))
	require.NoError(t, da.AddSingleGroupInput(1, []*vector.Vector{
		testInt64Vector(t, mp, []int64{7}),
	}))

	result := batch.New(1)
	require.NoError(t, da.ExtractValues([]int{0, 1}, result))
	counts := vector.MustFixedCol[int64](result.Vecs[0])
	require.Equal(t, []int64{2, 1}, counts)

	da.Free()
}

func TestCountDistinctBatchRouting(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, da.InitializeNewGroups([]int{0, 1}))

	vals := testInt64Vector(t, mp, []int64{5, 5, 7, 5, 7})
	// Rows route to group 1, none, group 2, group 1, group 2.
	groups := []uint64{1, GroupNotMatched, 2, 1, 2}
	require.NoError(t, da.AddInput(groups, []*vector.Vector{vals}))

	result := batch.New(1)
	require.NoError(t, da.ExtractValues([]int{0, 1}, result))
	require.Equal(t, []int64{1, 1}, vector.MustFixedCol[int64](result.Vecs[0]))

	da.Free()
}

func TestCountDistinctMultiColumn(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	allTypes := []types.Type{types.T_int32.ToType(), types.T_varchar.ToType()}
	da := newCountDistinct(t, mp, allTypes, []int{0, 1})
	require.NoError(t, da.InitializeNewGroups([]int{0}))

	a := vector.NewVector(types.T_int32.ToType())
	b := vector.NewVector(types.T_varchar.ToType())
	// (1,"a"), (1,"a"), (1,"b") holds two distinct pairs.
	for _, row := range []struct {
		x int32
		s string
	}{{1, "a"}, {1, "a"}, {1, "b"}} {
		require.NoError(t, vector.AppendFixed(a, row.x, false, mp))
		require.NoError(t, vector.AppendBytes(b, []byte(row.s), false, mp))
	}

	require.NoError(t, da.AddSingleGroupInput(0, []*vector.Vector{a, b}))

	result := batch.New(1)
	require.NoError(t, da.ExtractValues([]int{0}, result))
	require.Equal(t, []int64{2}, vector.MustFixedCol[int64](result.Vecs[0]))

	da.Free()
}

func TestDistinctNullCountsAsValueForSet(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, da.InitializeNewGroups([]int{0}))

	// Null dedups like any value but COUNT itself skips it on replay.
	require.NoError(t, da.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{5, 0, 0, 5}, 1, 2),
	}))
	require.Equal(t, int64(0), da.GroupMemSize(1))
	require.Greater(t, da.GroupMemSize(0), int64(0))

	result := batch.New(1)
	require.NoError(t, da.ExtractValues([]int{0}, result))
	require.Equal(t, []int64{1}, vector.MustFixedCol[int64](result.Vecs[0]))

	da.Free()
}

func TestDistinctSpillRestore(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, da.InitializeNewGroups([]int{0}))

	require.NoError(t, da.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{10, 20, 30, 20}),
	}))
	require.Greater(t, da.Size(), int64(0))

	spill, err := da.ExtractForSpill([]int{0})
	require.NoError(t, err)
	require.Equal(t, 1, spill.Length())

	// The group stays live with an empty set after the snapshot.
	require.Equal(t, int64(0), da.GroupMemSize(0))

	require.NoError(t, da.AddSingleGroupSpillInput(0, spill, 0))
	result := batch.New(1)
	require.NoError(t, da.ExtractValues([]int{0}, result))
	require.Equal(t, []int64{3}, vector.MustFixedCol[int64](result.Vecs[0]))

	spill.Free(mp)
	da.Free()
}

func TestDistinctSpillMergesIntoLiveGroup(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, da.InitializeNewGroups([]int{0}))
	require.NoError(t, da.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{1, 2}),
	}))

	spill, err := da.ExtractForSpill([]int{0})
	require.NoError(t, err)

	// New input arrives before the spilled rows come back; the restore
	// must merge, not replace.
	require.NoError(t, da.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{2, 3}),
	}))
	require.NoError(t, da.AddSingleGroupSpillInput(0, spill, 0))

	result := batch.New(1)
	require.NoError(t, da.ExtractValues([]int{0}, result))
	require.Equal(t, []int64{3}, vector.MustFixedCol[int64](result.Vecs[0]))

	spill.Free(mp)
	da.Free()
}

func TestDistinctSpillRestoreIntoFreshInstance(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	src := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, src.InitializeNewGroups([]int{0}))
	require.NoError(t, src.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{10, 20, 30, 20}),
	}))
	spill, err := src.ExtractForSpill([]int{0})
	require.NoError(t, err)

	// A partial-aggregation instance may see the cell land on a group
	// index it never initialized itself.
	dst := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, dst.AddSingleGroupSpillInput(2, spill, 0))

	result := batch.New(1)
	require.NoError(t, dst.ExtractValues([]int{2}, result))
	require.Equal(t, []int64{3}, vector.MustFixedCol[int64](result.Vecs[0]))

	spill.Free(mp)
	src.Free()
	dst.Free()
}

func TestDistinctSpillRestoreIntoHole(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	src := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, src.InitializeNewGroups([]int{0}))
	require.NoError(t, src.AddSingleGroupInput(0, []*vector.Vector{
		testInt64Vector(t, mp, []int64{1, 2}),
	}))
	spill, err := src.ExtractForSpill([]int{0})
	require.NoError(t, err)

	// Initializing group 2 leaves 0 and 1 as counted holes; restoring
	// into one of them must not grow the wrapped executor again.
	dst := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})
	require.NoError(t, dst.InitializeNewGroups([]int{2}))
	require.NoError(t, dst.AddSingleGroupInput(2, []*vector.Vector{
		testInt64Vector(t, mp, []int64{7}),
	}))
	require.NoError(t, dst.AddSingleGroupSpillInput(0, spill, 0))

	result := batch.New(1)
	require.NoError(t, dst.ExtractValues([]int{0, 2}, result))
	require.Equal(t, []int64{2, 1}, vector.MustFixedCol[int64](result.Vecs[0]))

	spill.Free(mp)
	src.Free()
	dst.Free()
}

func TestDistinctAccumulatorDescriptor(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_varchar.ToType()}, []int{0})

	acc := da.Accumulator()
	require.False(t, acc.IsFixedSize)
	require.True(t, acc.UsesExternalMemory)
	require.Equal(t, int32(1), acc.Alignment)
	require.Equal(t, types.T_varbinary, acc.SpillType.Oid)
	require.NotNil(t, acc.ExtractForSpill)
	require.NotNil(t, acc.Free)

	require.NoError(t, da.InitializeNewGroups([]int{0}))
	acc.Free([]int{0})
	require.Equal(t, int64(0), da.GroupMemSize(0))
	da.Free()
}

func TestNewDistinctAggregationsContract(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	inputTypes := []types.Type{types.T_int64.ToType()}

	_, err := NewDistinctAggregations(nil, inputTypes, mp)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	exec, err := MakeAgg(mp, AggIdOfCount, inputTypes)
	require.NoError(t, err)

	_, err = NewDistinctAggregations([]AggregateInfo{
		{Exec: exec, Inputs: []int{0}},
		{Exec: exec, Inputs: []int{0}},
	}, inputTypes, mp)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	_, err = NewDistinctAggregations([]AggregateInfo{
		{Exec: exec, Inputs: nil},
	}, inputTypes, mp)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	_, err = NewDistinctAggregations([]AggregateInfo{
		{Exec: exec, Inputs: []int{3}},
	}, inputTypes, mp)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestDistinctGroupLifecycle(t *testing.T) {
	mp := mpool.MustNewZeroCap("test")
	da := newCountDistinct(t, mp, []types.Type{types.T_int64.ToType()}, []int{0})

	require.NoError(t, da.InitializeNewGroups([]int{0}))
	err := da.InitializeNewGroups([]int{0})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))

	err = da.AddSingleGroupInput(5, []*vector.Vector{
		testInt64Vector(t, mp, []int64{1}),
	})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))

	da.Free()
	require.Equal(t, int64(0), da.Size())
}
