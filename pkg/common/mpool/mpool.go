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

// Package mpool is the per-operator memory pool. Every byte a query
// operator holds out of line (value-list chunks, vector columns, set
// internals) is charged here, so the operator can observe its footprint
// and decide when to spill.
package mpool

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vexdb/vex/pkg/common/moerr"
	"github.com/vexdb/vex/pkg/logutil"
)

// NoCap disables the pool limit.
const NoCap int64 = 0

// MPool tracks and limits the memory of one operator instance.
// An operator is owned by a single thread, but the counters use atomics
// so a parent pool can aggregate children without coordination.
type MPool struct {
	name string
	cap  int64

	currNB  atomic.Int64
	peakNB  atomic.Int64
	allocCn atomic.Int64
}

func NewMPool(name string, cap int64) (*MPool, error) {
	if cap < 0 {
		return nil, moerr.NewInvalidInputf("mpool %s: negative cap %d", name, cap)
	}
	return &MPool{name: name, cap: cap}, nil
}

// MustNewZeroCap is a test helper: unbounded pool, panics on bad input.
func MustNewZeroCap(name string) *MPool {
	m, err := NewMPool(name, NoCap)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *MPool) Name() string {
	return m.name
}

func (m *MPool) Cap() int64 {
	return m.cap
}

// CurrNB returns the bytes currently charged to the pool.
func (m *MPool) CurrNB() int64 {
	return m.currNB.Load()
}

func (m *MPool) PeakNB() int64 {
	return m.peakNB.Load()
}

// Reserve charges sz bytes against the pool without handing out a
// buffer. Vectors and uniqueness sets that grow native Go slices use
// this to keep the accounting honest.
func (m *MPool) Reserve(sz int64) error {
	if sz < 0 {
		return moerr.NewInvalidInputf("mpool %s: reserve %d", m.name, sz)
	}
	curr := m.currNB.Add(sz)
	if m.cap != NoCap && curr > m.cap {
		m.currNB.Add(-sz)
		return moerr.NewOOM(m.name, sz, m.cap)
	}
	for {
		peak := m.peakNB.Load()
		if curr <= peak || m.peakNB.CompareAndSwap(peak, curr) {
			break
		}
	}
	return nil
}

// Release returns previously reserved bytes.
func (m *MPool) Release(sz int64) {
	if sz < 0 {
		return
	}
	m.currNB.Add(-sz)
}

// Alloc hands out a zeroed buffer of exactly sz bytes, charged to the
// pool. Failure is fatal for the query; the caller does not retry.
func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidInputf("mpool %s: alloc %d", m.name, sz)
	}
	if sz == 0 {
		return nil, nil
	}
	if err := m.Reserve(int64(sz)); err != nil {
		return nil, err
	}
	m.allocCn.Add(1)
	return make([]byte, sz), nil
}

// Free returns a buffer obtained from Alloc. The full capacity is
// released, matching what Alloc charged.
func (m *MPool) Free(buf []byte) {
	if buf == nil {
		return
	}
	m.Release(int64(cap(buf)))
}

// Report logs the pool's counters. Called by operators on close.
func (m *MPool) Report() {
	logutil.Info("mpool report",
		zap.String("name", m.name),
		zap.Int64("curr", m.CurrNB()),
		zap.Int64("peak", m.PeakNB()),
		zap.Int64("allocs", m.allocCn.Load()),
		zap.Int64("cap", m.cap))
}
