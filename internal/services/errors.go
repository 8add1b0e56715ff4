// Package services defines the business logic of the fortune engine.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Generation never fails, so the only errors here belong to operator-facing
// maintenance. Translation into HTTP status codes is performed at the
// handler layer.
package services

import "errors"

// ErrCleanupUnavailable is returned when the retention purge could not
// reach the uniqueness store.
var ErrCleanupUnavailable = errors.New("cleanup unavailable: store error")
