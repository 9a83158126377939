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

// Package aggexec implements the aggregate executors of the group-by
// operator, including the DISTINCT machinery: a pool-backed positioned
// value store, per-group uniqueness sets, and the distinct wrapper that
// replays deduplicated inputs through an ordinary aggregate executor.
package aggexec

import (
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
)

// GroupNotMatched marks a row that maps to no group in a batch-fill
// group slice. Group numbers in those slices are 1-based.
const GroupNotMatched uint64 = 0

// AggFuncExec is one aggregate function over all groups of an operator.
type AggFuncExec interface {
	// TypesInfo returns the argument types and the return type.
	TypesInfo() ([]types.Type, types.Type)

	// GroupGrow appends `more` fresh groups.
	GroupGrow(more int) error

	// Fill adds row `row` of the input vectors to one group.
	Fill(groupIndex int, row int, vectors []*vector.Vector) error

	// BulkFill adds every row of the input vectors to one group.
	BulkFill(groupIndex int, vectors []*vector.Vector) error

	// BatchFill adds rows [offset, offset+len(groups)) to the groups
	// listed per row; GroupNotMatched rows are skipped.
	BatchFill(offset int, groups []uint64, vectors []*vector.Vector) error

	// Flush returns the per-group results as one vector. The caller
	// owns the returned vector.
	Flush() (*vector.Vector, error)

	// Free releases all group state. The executor is dead afterwards.
	Free()
}

// Aggregate function IDs understood by MakeAgg.
const (
	AggIdOfCount       int64 = 1
	AggIdOfSum         int64 = 2
	AggIdOfMin         int64 = 3
	AggIdOfMax         int64 = 4
	AggIdOfApproxCount int64 = 5
)
