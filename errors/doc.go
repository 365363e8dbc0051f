// Package errors provides structured error types for luahost.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending name (module, function or table), a detail
// message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindNotFound).
//		Name("ui.main_menu").
//		Detail("no file at %s", path).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseCall, "function", "Startup")
//	err := errors.Verification("hotfix.bytes", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two errors match under errors.Is when their Phase and Kind are equal; Sentinel
// values built with Kind only (Phase empty) match any phase.
package errors
