// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings carried in the `code` field
// of every error envelope (see fail()). Clients branch on the code; the
// message is for humans.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "bad_request",
//	  "message": "subject.birth_date must be YYYY-MM-DD"
//	}
package handlers

import "errors"

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeStoreUnavailable = "store_unavailable"
)

// Validation errors for generation requests. Their text is returned to the
// client verbatim.
var (
	ErrNameRequired     = errors.New("subject.name is required")
	ErrNameTooLong      = errors.New("subject.name is too long")
	ErrBirthDateInvalid = errors.New("subject.birth_date must be YYYY-MM-DD")
	ErrBirthTimeInvalid = errors.New("subject.birth_time must be HH:MM")
	ErrLunarPhaseRange  = errors.New("environment.lunar_phase must be in [0,1)")
	ErrBaseTooLong      = errors.New("base_message is too long")
)
