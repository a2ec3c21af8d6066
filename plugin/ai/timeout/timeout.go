// Package timeout defines centralized timeout constants for AI operations.
package timeout

import "time"

const (
	// StreamTimeout is the timeout for streaming responses from LLM.
	StreamTimeout = 5 * time.Minute

	// RegenerateTimeout bounds one regenerate call including retries.
	RegenerateTimeout = 2 * time.Minute

	// RequestTimeout is the HTTP client timeout for a single LLM request.
	RequestTimeout = 60 * time.Second

	// MaxRetries is the number of attempts for a transient LLM failure.
	MaxRetries = 3

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
