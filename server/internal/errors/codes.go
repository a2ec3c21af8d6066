package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific failure of a message mutation.
type ErrorCode string

const (
	// ErrCodeMissingConversationOrCredentials indicates a precondition failure; nothing was attempted.
	ErrCodeMissingConversationOrCredentials ErrorCode = "MISSING_CONVERSATION_OR_CREDENTIALS"
	// ErrCodeMessageNotFound indicates the message id could not be resolved to a role-index.
	ErrCodeMessageNotFound ErrorCode = "MESSAGE_NOT_FOUND"
	// ErrCodeMutationRejected indicates the conversation store refused or failed the mutation.
	ErrCodeMutationRejected ErrorCode = "MUTATION_REJECTED"
	// ErrCodeContextCanceled indicates the operation was canceled before dispatch.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeUnexpected indicates any other failure.
	ErrCodeUnexpected ErrorCode = "UNEXPECTED"
)

// MutationError represents a structured error for message mutations.
type MutationError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *MutationError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *MutationError) WithContext(key string, value interface{}) *MutationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *MutationError) GetCode() ErrorCode {
	return e.Code
}

// MissingConversationOrCredentials creates a precondition error.
func MissingConversationOrCredentials(msg string) *MutationError {
	return &MutationError{Code: ErrCodeMissingConversationOrCredentials, Message: msg}
}

// MessageNotFound creates a resolution error for messageID.
func MessageNotFound(messageID string) *MutationError {
	return &MutationError{
		Code:    ErrCodeMessageNotFound,
		Message: fmt.Sprintf("message not found in conversation history: %s", messageID),
	}
}

// MutationRejected creates an error for a failed store mutation.
func MutationRejected(msg string, cause error) *MutationError {
	return &MutationError{Code: ErrCodeMutationRejected, Message: msg, Cause: cause}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *MutationError {
	return &MutationError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Unexpected wraps any other failure.
func Unexpected(msg string, cause error) *MutationError {
	return &MutationError{Code: ErrCodeUnexpected, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var mErr *MutationError
	if errors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a MutationError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var mErr *MutationError
	if errors.As(err, &mErr) {
		return mErr.Code
	}
	return defaultCode
}
