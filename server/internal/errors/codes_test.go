package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutationError(t *testing.T) {
	err := MutationRejected("failed to edit AI message", context.DeadlineExceeded).
		WithContext("role_index", 3)

	assert.Equal(t, "[MUTATION_REJECTED] failed to edit AI message: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, err.Context["role_index"])
	assert.Equal(t, ErrCodeMutationRejected, err.GetCode())
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", MessageNotFound("1700000000000-x"))

	assert.True(t, IsCode(wrapped, ErrCodeMessageNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeUnexpected))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrCodeUnexpected))
	assert.Equal(t, ErrCodeMessageNotFound, GetCodeFromError(wrapped, ErrCodeUnexpected))
	assert.Equal(t, ErrCodeUnexpected, GetCodeFromError(fmt.Errorf("plain"), ErrCodeUnexpected))
	assert.Equal(t, "[MISSING_CONVERSATION_OR_CREDENTIALS] API key not found in settings",
		MissingConversationOrCredentials("API key not found in settings").Error())
}
