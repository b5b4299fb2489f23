package models

import "fmt"

// ErrorCode is the typed outcome surfaced to callers when generation
// or finalization cannot complete.
type ErrorCode string

const (
	CodeNoAPIKey         ErrorCode = "NO_API_KEY"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	CodeQARejected       ErrorCode = "QA_REJECTED"
)

// PipelineError is an expected failure mode: it is returned as a value,
// interpreted by the orchestrator, and written into the trace. It never
// carries internal exception text to the end user.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s at stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewPipelineError(code ErrorCode, stage, message string) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, Message: message}
}

// ErrorResponse is the JSON error body every handler returns.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code,omitempty"`
}
