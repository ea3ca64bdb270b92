// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package errutil

import "github.com/samber/oops"

// HasCode reports whether err is an oops error carrying code.
func HasCode(err error, code string) bool {
	return code != "" && Code(err) == code
}

// Code returns the oops code carried by err, or "" when it has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
