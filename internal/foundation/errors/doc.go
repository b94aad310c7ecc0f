// Package errors provides the classified error primitives used across distcache.
//
// Every stage failure is surfaced as a ClassifiedError so the CLI can map it to an
// exit code and the run ledger can record its category.
//
// Key features:
//   - ErrorCategory: failure class (environment, merge, packaging, handoff, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: whether an optional retry policy may repeat the operation
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and user-facing messages
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryMerge, "merge of head onto base failed").
//		WithContext("base", base).
//		WithContext("head", head).
//		WithCause(originalErr).
//		Build()
package errors
