// Package validation provides common validation utilities for configuration
// parameters across taskflow.
//
// Every helper returns a *errors.ValidationError so callers can match
// invalid input with errors.IsValidationError or errors.Is(err,
// errors.ErrInvalidConfiguration).
package validation
