// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pftl/pftl/pkg/errutil"
)

func TestRegistry_CreateLookupRemove(t *testing.T) {
	r := NewRegistry()

	s, err := r.Create("ABC", 1, nil, manualOptions())
	require.NoError(t, err)

	found, err := r.Lookup("ABC")
	require.NoError(t, err)
	assert.Same(t, s, found)

	_, err = r.Create("ABC", 2, nil, manualOptions())
	errutil.AssertErrorCode(t, err, CodeDuplicateCode)

	assert.True(t, r.Remove("ABC"))
	assert.False(t, r.Remove("ABC"))

	_, err = r.Lookup("ABC")
	errutil.AssertErrorCode(t, err, CodeUnknownSession)
	errutil.AssertErrorContext(t, err, "game_code", "ABC")
}

func TestRegistry_CreateFailureLeavesNoEntry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("bad code", 1, nil, manualOptions())
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RemoveSessionChecksIdentity(t *testing.T) {
	r := NewRegistry()
	old, err := r.Create("ABC", 1, nil, manualOptions())
	require.NoError(t, err)
	require.True(t, r.Remove("ABC"))

	current, err := r.Create("ABC", 2, nil, manualOptions())
	require.NoError(t, err)

	assert.False(t, r.RemoveSession(old))
	assert.True(t, r.RemoveSession(current))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CodesAndSessionsSorted(t *testing.T) {
	r := NewRegistry()
	for _, code := range []string{"C", "A", "B"} {
		_, err := r.Create(code, 1, nil, manualOptions())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"A", "B", "C"}, r.Codes())
	sessions := r.Sessions()
	require.Len(t, sessions, 3)
	assert.Equal(t, "A", sessions[0].Code())
}

func TestRegistry_ConcurrentCreateOneWinner(t *testing.T) {
	r := NewRegistry()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create("SAME", int64(i), nil, manualOptions())
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			errutil.AssertErrorCode(t, err, CodeDuplicateCode)
		}()
	}
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Create(fmt.Sprintf("G%d", i), 1, nil, manualOptions())
			_, _ = r.Lookup("SAME")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 51, r.Len())
}
