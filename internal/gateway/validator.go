// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package gateway

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"
)

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return oops.Code(CodeBadRequest).Wrap(err)
	}
	return nil
}

// bind decodes the request into v and validates it.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return oops.Code(CodeBadRequest).Wrapf(err, "decode request")
	}
	return c.Validate(v)
}
