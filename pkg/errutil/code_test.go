// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/pftl/pftl/pkg/errutil"
)

func TestHasCode(t *testing.T) {
	err := oops.Code("UNKNOWN_SESSION").Errorf("no session")

	assert.True(t, errutil.HasCode(err, "UNKNOWN_SESSION"))
	assert.False(t, errutil.HasCode(err, "INVALID_STATE"))
	assert.False(t, errutil.HasCode(errors.New("plain"), "UNKNOWN_SESSION"))
	assert.False(t, errutil.HasCode(nil, "UNKNOWN_SESSION"))
}

func TestCode(t *testing.T) {
	wrapped := oops.With("game_code", "ABC123").Wrap(oops.Code("INVALID_STATE").Errorf("not waiting"))

	assert.Equal(t, "INVALID_STATE", errutil.Code(wrapped))
	assert.Empty(t, errutil.Code(oops.Errorf("no code")))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	assert.Empty(t, errutil.Code(nil))
}
