// Package errors provides structured error types for hashwx.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries a detail message, the offending value or
// names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSeed, errors.KindInvalidInput).
//		Value(len(seed)).
//		Detail("seed must be %d bytes", 32).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseExec, h)
//	err := errors.MissingExports(errors.PhaseInit, []string{"hashwx_make"})
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind; Sentinel(kind) matches a Kind in any phase.
package errors
