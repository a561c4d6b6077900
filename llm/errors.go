package llm

import "fmt"

// ResponseError represents an LLM protocol failure — an unexpected finish
// reason or a deserialization failure (spec.md §4.4.4, §7). The pipeline
// aborts the current article's analysis on this error and writes a
// failed=true Verdict.
type ResponseError struct {
	Model string
	Err   error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("llm: response error from model %s: %v", e.Model, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }
