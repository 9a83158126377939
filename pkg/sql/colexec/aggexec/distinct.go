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
	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/container/batch"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

// AggregateInfo binds one wrapped aggregate executor to its input
// columns in the operator's batch schema and its output column in the
// result batch.
type AggregateInfo struct {
	Exec   AggFuncExec
	Inputs []int
	Output int
}

// Accumulator describes the distinct accumulator to the operator's
// generic group-row management: its layout traits, the column type its
// spill extraction produces, and the callbacks the operator invokes
// without knowing the element type.
type Accumulator struct {
	IsFixedSize        bool
	UsesExternalMemory bool
	Alignment          int32
	SpillType          types.Type

	ExtractForSpill func(groups []int) (*vector.Vector, error)
	Free            func(groups []int)
}

// DistinctAggregations buffers the unique inputs of one DISTINCT
// aggregate spec per group and replays them through the wrapped
// aggregate executors at extraction time. One instance is owned by one
// operator thread.
type DistinctAggregations interface {
	// Accumulator returns the static descriptor for group-row management.
	Accumulator() Accumulator

	// InitializeNewGroups constructs a fresh uniqueness set for each
	// listed group index and grows every wrapped aggregate to match.
	InitializeNewGroups(indices []int) error

	// AddInput routes each batch row to its group, groups[i] being the
	// 1-based group of row i (GroupNotMatched rows are skipped).
	AddInput(groups []uint64, vectors []*vector.Vector) error

	// AddSingleGroupInput adds every batch row to one group.
	AddSingleGroupInput(group int, vectors []*vector.Vector) error

	// AddSingleGroupSpillInput restores a previously spilled group from
	// row `row` of a spill column produced by ExtractForSpill.
	AddSingleGroupSpillInput(group int, spill *vector.Vector, row int) error

	// ExtractValues replays each listed group's distinct values through
	// the wrapped aggregates and writes their finals into the result
	// batch; the wrapped aggregates' group state is released after.
	ExtractValues(groups []int, result *batch.Batch) error

	// ExtractForSpill snapshots each listed group's set into one
	// spill-column cell and clears the set, leaving the group reusable.
	ExtractForSpill(groups []int) (*vector.Vector, error)

	// GroupMemSize reports the pool bytes attributed to one group row.
	GroupMemSize(group int) int64

	Size() int64
	Free()
}

type distinctAggregations struct {
	mp *mpool.MPool

	aggs   []AggregateInfo
	inputs []int

	// elemType is the uniqueness element: the single input column's
	// type, or T_row when several columns are distinct together.
	elemType   types.Type
	childTypes []types.Type

	sets   []distinctSet
	newSet func() distinctSet
}

// NewDistinctAggregations builds the accumulator for exactly one
// DISTINCT aggregate spec. The set body is picked here, once, from the
// element type; zero or several specs, or a spec without inputs, is a
// caller bug.
func NewDistinctAggregations(
	aggs []AggregateInfo,
	inputTypes []types.Type,
	mp *mpool.MPool,
) (DistinctAggregations, error) {
	if len(aggs) != 1 {
		return nil, moerr.NewInvalidInputf("distinct accumulator wants exactly 1 aggregate spec, got %d", len(aggs))
	}
	if len(aggs[0].Inputs) == 0 {
		return nil, moerr.NewInvalidInput("distinct aggregate spec has no input columns")
	}
	for _, col := range aggs[0].Inputs {
		if col < 0 || col >= len(inputTypes) {
			return nil, moerr.NewInvalidInputf("distinct input column %d out of range %d", col, len(inputTypes))
		}
	}

	da := &distinctAggregations{
		mp:     mp,
		aggs:   aggs,
		inputs: aggs[0].Inputs,
	}

	if len(da.inputs) == 1 {
		da.elemType = inputTypes[da.inputs[0]]
	} else {
		// Several columns are distinct together; the set works over one
		// synthetic composite element.
		da.elemType = types.Type{Oid: types.T_row}
		da.childTypes = make([]types.Type, len(da.inputs))
		for i, col := range da.inputs {
			da.childTypes[i] = inputTypes[col]
		}
	}

	newSet, err := newDistinctSet(da.elemType, da.newElemVector, mp)
	if err != nil {
		return nil, err
	}
	da.newSet = newSet
	return da, nil
}

// newElemVector builds an empty vector of the element type, used to
// materialize a group's distinct values.
func (da *distinctAggregations) newElemVector() *vector.Vector {
	if da.elemType.Oid != types.T_row {
		return vector.NewVector(da.elemType)
	}
	children := make([]*vector.Vector, len(da.childTypes))
	for i, typ := range da.childTypes {
		children[i] = vector.NewVector(typ)
	}
	return vector.NewRowVector(children)
}

// makeInputVector projects the distinct-sensitive columns of a batch
// into the single element vector the set consumes.
func (da *distinctAggregations) makeInputVector(vectors []*vector.Vector) *vector.Vector {
	if len(da.inputs) == 1 {
		return vectors[da.inputs[0]]
	}
	children := make([]*vector.Vector, len(da.inputs))
	for i, col := range da.inputs {
		children[i] = vectors[col]
	}
	return vector.NewRowVector(children)
}

// makeInputForAggregation undoes the composite projection for the
// wrapped aggregate's raw-input path.
func (da *distinctAggregations) makeInputForAggregation(data *vector.Vector) []*vector.Vector {
	if len(da.inputs) == 1 {
		return []*vector.Vector{data}
	}
	return data.Children()
}

func (da *distinctAggregations) Accumulator() Accumulator {
	return Accumulator{
		IsFixedSize:        false,
		UsesExternalMemory: true,
		Alignment:          1,
		SpillType:          types.T_varbinary.ToType(),
		ExtractForSpill:    da.ExtractForSpill,
		Free: func(groups []int) {
			for _, g := range groups {
				if g < len(da.sets) && da.sets[g] != nil {
					da.sets[g].free()
					da.sets[g] = nil
				}
			}
		},
	}
}

func (da *distinctAggregations) InitializeNewGroups(indices []int) error {
	grown := 0
	for _, g := range indices {
		if g < 0 {
			return moerr.NewInvalidInputf("negative group index %d", g)
		}
		for g >= len(da.sets) {
			da.sets = append(da.sets, nil)
			grown++
		}
		if da.sets[g] != nil {
			return moerr.NewInvalidStatef("group %d initialized twice", g)
		}
		da.sets[g] = da.newSet()
	}
	if grown > 0 {
		for _, agg := range da.aggs {
			if err := agg.Exec.GroupGrow(grown); err != nil {
				return err
			}
		}
	}
	return nil
}

func (da *distinctAggregations) setOf(group int) (distinctSet, error) {
	if group < 0 || group >= len(da.sets) || da.sets[group] == nil {
		return nil, moerr.NewInvalidStatef("group %d is not initialized", group)
	}
	return da.sets[group], nil
}

func (da *distinctAggregations) AddInput(groups []uint64, vectors []*vector.Vector) error {
	elem := da.makeInputVector(vectors)
	for i, g := range groups {
		if g == GroupNotMatched {
			continue
		}
		set, err := da.setOf(int(g - 1))
		if err != nil {
			return err
		}
		if _, err := set.addValue(elem, i); err != nil {
			return err
		}
	}
	return nil
}

func (da *distinctAggregations) AddSingleGroupInput(group int, vectors []*vector.Vector) error {
	elem := da.makeInputVector(vectors)
	set, err := da.setOf(group)
	if err != nil {
		return err
	}
	for row, n := 0, elem.Length(); row < n; row++ {
		if _, err := set.addValue(elem, row); err != nil {
			return err
		}
	}
	return nil
}

func (da *distinctAggregations) AddSingleGroupSpillInput(group int, spill *vector.Vector, row int) error {
	if group < 0 {
		return moerr.NewInvalidInputf("negative group index %d", group)
	}
	// A spilled group merges back into a fresh set unless the group is
	// already live again. Executor group counts track len(da.sets), so
	// only newly appended slots grow the wrapped aggregates; filling a
	// nil hole was already counted by InitializeNewGroups.
	grown := 0
	for group >= len(da.sets) {
		da.sets = append(da.sets, nil)
		grown++
	}
	if grown > 0 {
		for _, agg := range da.aggs {
			if err := agg.Exec.GroupGrow(grown); err != nil {
				return err
			}
		}
	}
	if da.sets[group] == nil {
		da.sets[group] = da.newSet()
	}
	if spill.IsNull(uint64(row)) {
		return nil
	}
	return da.sets[group].addFromSpill(spill.GetBytesAt(row))
}

func (da *distinctAggregations) ExtractValues(groups []int, result *batch.Batch) error {
	for _, agg := range da.aggs {
		for _, g := range groups {
			set, err := da.setOf(g)
			if err != nil {
				return err
			}
			data, err := set.extractValues()
			if err != nil {
				return err
			}
			err = agg.Exec.BulkFill(g, da.makeInputForAggregation(data))
			data.Free(da.mp)
			if err != nil {
				return err
			}
		}

		flushed, err := agg.Exec.Flush()
		if err != nil {
			return err
		}
		out := vector.NewVector(flushed.GetType())
		for _, g := range groups {
			if err := vector.UnionOne(out, flushed, g, da.mp); err != nil {
				flushed.Free(da.mp)
				return err
			}
		}
		flushed.Free(da.mp)
		result.Vecs[agg.Output] = out

		// The wrapped aggregate's group state and the distinct
		// buffering are released independently.
		agg.Exec.Free()
	}
	return nil
}

func (da *distinctAggregations) ExtractForSpill(groups []int) (*vector.Vector, error) {
	out := vector.NewVector(types.T_varbinary.ToType())
	for _, g := range groups {
		set, err := da.setOf(g)
		if err != nil {
			out.Free(da.mp)
			return nil, err
		}
		buf := make([]byte, set.maxSpillSize())
		n, err := set.extractForSpill(buf)
		if err != nil {
			out.Free(da.mp)
			return nil, err
		}
		if err := vector.AppendBytes(out, buf[:n], false, da.mp); err != nil {
			out.Free(da.mp)
			return nil, err
		}
		// Clearing keeps the group row reusable if the operator decides
		// the spill was unnecessary after all.
		set.clear()
	}
	return out, nil
}

func (da *distinctAggregations) GroupMemSize(group int) int64 {
	if group < 0 || group >= len(da.sets) || da.sets[group] == nil {
		return 0
	}
	return da.sets[group].memSize()
}

func (da *distinctAggregations) Size() int64 {
	var sz int64
	for _, set := range da.sets {
		if set != nil {
			sz += set.memSize()
		}
	}
	return sz
}

func (da *distinctAggregations) Free() {
	for i, set := range da.sets {
		if set != nil {
			set.free()
			da.sets[i] = nil
		}
	}
	da.sets = nil
}
