// Package errors provides coded, user-facing errors for the vango-live CLI
// and project configuration.
//
// Each code maps to a registered template with a category, a short message
// and a longer detail. Callers attach the underlying error and a hint:
//
//	return errors.New("L001").Wrap(err).WithSuggestion("check live.json for a trailing comma")
//
// Format renders the error for a terminal; FormatCompact fits one log line.
package errors
