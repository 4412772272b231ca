// Package errors provides classified errors for spackbridge.
//
// Every failure that crosses a component boundary is a ClassifiedError with
// a category, severity, and retry strategy. The HTTP adapter maps categories
// to status codes so handlers never hand-roll error responses. Only
// process-level failures (spawn, timeout, non-zero exit, session resolution)
// surface here; parsing and extraction degradation is absorbed into default
// values inside internal/spack and never raised.
package errors
