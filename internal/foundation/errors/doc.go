// Package errors provides the classified error type used across assetpipe.
//
// Errors carry a category (config, build, filesystem, ...), a severity and a
// retry hint, plus structured context. The CLI adapter turns them into exit
// codes and user-facing messages.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryBuild, "stylesheet compile failed").
//		WithContext("unit", "header").
//		WithContext("entry", entryPath).
//		Build()
package errors
