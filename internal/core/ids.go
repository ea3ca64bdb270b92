// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package core

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewULID generates a new ULID.
func NewULID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// ParseULID parses a ULID string.
func ParseULID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid ULID %q: %w", s, err)
	}
	return id, nil
}

// GameCodeLength is the length of generated game codes.
const GameCodeLength = 6

const gameCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewGameCode returns a random uppercase alphanumeric game code.
func NewGameCode() (string, error) {
	var b strings.Builder
	b.Grow(GameCodeLength)
	limit := big.NewInt(int64(len(gameCodeAlphabet)))
	for range GameCodeLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate game code: %w", err)
		}
		b.WriteByte(gameCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ValidGameCode reports whether code is non-empty, at most 32 characters and
// made of uppercase letters, digits, '-' or '_'.
func ValidGameCode(code string) bool {
	if code == "" || len(code) > 32 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// NewSeed returns a random battle seed.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to generate seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1), nil
}
