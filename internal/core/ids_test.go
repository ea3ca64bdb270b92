// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id1 := NewULID()
	id2 := NewULID()

	assert.NotEqual(t, id1.String(), id2.String())
	assert.LessOrEqual(t, id1.String(), id2.String(), "later ULID sorts after earlier ULID")
}

func TestParseULID(t *testing.T) {
	original := NewULID()
	parsed, err := ParseULID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	_, err = ParseULID("invalid")
	assert.Error(t, err)
}

func TestNewGameCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		code, err := NewGameCode()
		require.NoError(t, err)
		assert.Len(t, code, GameCodeLength)
		assert.Equal(t, strings.ToUpper(code), code)
		assert.True(t, ValidGameCode(code))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestValidGameCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC123", true},
		{"GAME_2-B", true},
		{"", false},
		{"abc123", false},
		{"ABC 123", false},
		{strings.Repeat("A", 33), false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidGameCode(tt.code))
		})
	}
}

func TestNewSeed(t *testing.T) {
	seed, err := NewSeed()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seed, int64(0))
}
