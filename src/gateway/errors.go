package gateway

import "fmt"

// Operations reported in UpstreamError.Op.
const (
	OpCompleteChat     = "complete_chat"
	OpTranscribe       = "transcribe"
	OpSynthesizeSpeech = "synthesize_speech"
)

// ValidationError reports a caller-supplied input the gateway refuses to send
// upstream.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// UpstreamError wraps a failure returned by the provider client.
type UpstreamError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
