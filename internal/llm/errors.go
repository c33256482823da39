package llm

import "fmt"

const reasonMessagesRequired = "'messages' array is required."

// ValidationError reports a malformed client request. No upstream call is
// made for it.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return "Invalid request body: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UpstreamHTTPError carries a non-2xx upstream status and its body text.
type UpstreamHTTPError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("Hunyuan API error: %d - %s", e.StatusCode, e.Body)
}
