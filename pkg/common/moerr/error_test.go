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

package moerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	err := NewInvalidInputf("distinct agg wants %d inputs", 0)
	require.Error(t, err)
	require.True(t, IsMoErrCode(err, ErrInvalidInput))
	require.False(t, IsMoErrCode(err, ErrInternal))
	require.Contains(t, err.Error(), "invalid input")

	require.True(t, IsMoErrCode(nil, Ok))
	require.False(t, IsMoErrCode(nil, ErrInternal))
}

func TestOOM(t *testing.T) {
	err := NewOOM("test", 1024, 512)
	require.True(t, IsMoErrCode(err, ErrOOM))
	require.Contains(t, err.Error(), "out of memory")
}

func TestShortBuffer(t *testing.T) {
	err := NewShortBuffer(100, 10)
	require.True(t, IsMoErrCode(err, ErrShortBuffer))
}
