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

// Package group holds the group-by operator's spill machinery.
package group

import (
	"github.com/pierrec/lz4/v4"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/common/mpool"
	"github.com/vexdb/vex/pkg/config"
	"github.com/vexdb/vex/pkg/container/types"
	"github.com/vexdb/vex/pkg/container/vector"
	"github.com/vexdb/vex/pkg/logutil"
	"github.com/vexdb/vex/pkg/sql/colexec/aggexec"
)

// stagedCell is one group's parked spill cell. The buffer is pool
// memory; rawSize is the size before compression.
type stagedCell struct {
	group      int
	data       []byte
	rawSize    int
	compressed bool
}

// SpillStager parks distinct-accumulator state for groups under memory
// pressure and merges it back before extraction. Cells stay in process;
// compression trades CPU for pool headroom.
type SpillStager struct {
	mp       *mpool.MPool
	compress bool

	cells   []stagedCell
	scratch []byte
}

func NewSpillStager(cfg *config.Config, mp *mpool.MPool) *SpillStager {
	return &SpillStager{
		mp:       mp,
		compress: cfg.Spill.Compression == config.CompressionLZ4,
	}
}

// Stage snapshots the listed groups out of the accumulator and parks
// them. The accumulator's sets come back empty and stay usable.
func (s *SpillStager) Stage(da aggexec.DistinctAggregations, groups []int) error {
	vec, err := da.ExtractForSpill(groups)
	if err != nil {
		return err
	}
	defer vec.Free(s.mp)

	var rawTotal, storedTotal int64
	for i, g := range groups {
		cell := vec.GetBytesAt(i)
		staged, err := s.park(g, cell)
		if err != nil {
			return err
		}
		s.cells = append(s.cells, staged)
		rawTotal += int64(staged.rawSize)
		storedTotal += int64(len(staged.data))
	}
	logutil.Infof("staged %d groups: %d bytes raw, %d bytes held", len(groups), rawTotal, storedTotal)
	return nil
}

func (s *SpillStager) park(group int, cell []byte) (stagedCell, error) {
	src := cell
	compressed := false
	if s.compress && len(cell) > 0 {
		bound := lz4.CompressBlockBound(len(cell))
		if cap(s.scratch) < bound {
			s.scratch = make([]byte, bound)
		}
		n, err := lz4.CompressBlock(cell, s.scratch[:bound], nil)
		if err != nil {
			return stagedCell{}, moerr.NewInternalErrorf("compress spill cell: %v", err)
		}
		// n == 0 means the block did not shrink; keep it raw.
		if n > 0 && n < len(cell) {
			src = s.scratch[:n]
			compressed = true
		}
	}

	held, err := s.mp.Alloc(len(src))
	if err != nil {
		return stagedCell{}, err
	}
	copy(held, src)
	return stagedCell{group: group, data: held, rawSize: len(cell), compressed: compressed}, nil
}

// Restore merges every parked cell back into the accumulator and
// releases the held memory. New input seen since Stage survives.
func (s *SpillStager) Restore(da aggexec.DistinctAggregations) error {
	for _, cell := range s.cells {
		raw := cell.data
		if cell.compressed {
			dst := make([]byte, cell.rawSize)
			n, err := lz4.UncompressBlock(cell.data, dst)
			if err != nil {
				return moerr.NewInternalErrorf("uncompress spill cell of group %d: %v", cell.group, err)
			}
			if n != cell.rawSize {
				return moerr.NewInternalErrorf("spill cell of group %d inflated to %d bytes, want %d", cell.group, n, cell.rawSize)
			}
			raw = dst
		}

		carrier := vector.NewVector(types.T_varbinary.ToType())
		if err := vector.AppendBytes(carrier, raw, false, s.mp); err != nil {
			carrier.Free(s.mp)
			return err
		}
		err := da.AddSingleGroupSpillInput(cell.group, carrier, 0)
		carrier.Free(s.mp)
		if err != nil {
			return err
		}
	}
	restored := len(s.cells)
	s.release()
	logutil.Infof("restored %d staged groups", restored)
	return nil
}

// StagedBytes reports the pool memory held by parked cells.
func (s *SpillStager) StagedBytes() int64 {
	var sz int64
	for _, cell := range s.cells {
		sz += int64(len(cell.data))
	}
	return sz
}

// StagedGroups reports how many parked cells are waiting.
func (s *SpillStager) StagedGroups() int {
	return len(s.cells)
}

func (s *SpillStager) release() {
	for _, cell := range s.cells {
		s.mp.Free(cell.data)
	}
	s.cells = nil
}

// Free drops every parked cell without restoring it.
func (s *SpillStager) Free() {
	s.release()
	s.scratch = nil
}
