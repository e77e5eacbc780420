// Package errors provides structured error types for the IL emitter.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the method being compiled, the block path, the offending
// semantic type, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindUnsupported).
//		Path("binary", "left").
//		Type("bool").
//		Detail("operator %s is not defined", "shl").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StackUnderflow(1, 0)
//	err := errors.StackMismatch("if/else arms", 1, 2)
//
// Verification failures (PhaseVerify) are fatal for the method being compiled and
// are reported to callers wrapped by Internal. All errors support errors.Is/As.
package errors
