package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunError_Error(t *testing.T) {
	err := &RunError{
		Code:       ErrCodeStore,
		Invocation: "inv-1",
		Stage:      StageObjects,
		Err:        errors.New("disk I/O error"),
	}
	assert.Equal(t, "STORE_FAILURE: disk I/O error (invocation=inv-1, stage=objects)", err.Error())

	err.Stage = ""
	assert.Equal(t, "STORE_FAILURE: disk I/O error (invocation=inv-1)", err.Error())
}

func TestRunError_Helpers(t *testing.T) {
	cause := errors.New("cause")
	lockErr := fmt.Errorf("wrapped: %w", &RunError{Code: ErrCodeLockNotAcquired, Err: cause})
	storeErr := &RunError{Code: ErrCodeStore, Err: cause}

	assert.True(t, IsLockError(lockErr))
	assert.False(t, IsStoreError(lockErr))
	assert.True(t, IsStoreError(storeErr))
	assert.False(t, IsLockError(storeErr))
	assert.False(t, IsLockError(cause))

	assert.ErrorIs(t, lockErr, cause, "RunError unwraps to its cause")
}
