// Package errors provides foundational, type-safe error primitives used across assetforge.
//
// Key features:
//   - ErrorCategory: broad classification (config, preferences, locale, external_tool, git, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - ClassifiedError: structured error with category, severity, and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and user-facing formatting
//
// Example usage:
//
//	err := errors.ConfigError("missing required define").
//		WithContext("key", "GENERIC").
//		WithContext("entry", "main").
//		Build()
package errors
