package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_ErrorString(t *testing.T) {
	plain := NewValidationError("port must be set", nil)
	assert.Equal(t, "validation: port must be set", plain.Error())

	wrapped := NewIOError("failed to read configuration file", fmt.Errorf("permission denied"))
	assert.Equal(t, "io: failed to read configuration file: permission denied", wrapped.Error())
}

func TestDomainError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("exec: \"rackup\": executable file not found in $PATH")
	err := fmt.Errorf("start: %w", NewProcessError("failed to launch", cause))

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &DomainError{Type: ErrorTypeProcess}))
	assert.False(t, errors.Is(err, &DomainError{Type: ErrorTypeIO}))

	assert.True(t, IsProcessError(err))
	assert.False(t, IsValidationError(err))
	assert.False(t, IsProcessError(nil))
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewDiscoveryError("lookup failed", nil).WithContext("port", 9292).WithContext("method", "lsof")

	assert.Equal(t, 9292, err.Context["port"])
	assert.Equal(t, "lsof", err.Context["method"])

	bare := &DomainError{Type: ErrorTypeTimeout}
	bare.WithContext("pid", 42)
	assert.Equal(t, 42, bare.Context["pid"])
}

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", NewValidationError("x", nil), IsValidationError},
		{"process", NewProcessError("x", nil), IsProcessError},
		{"discovery", NewDiscoveryError("x", nil), IsDiscoveryError},
		{"timeout", NewTimeoutError("x", nil), IsTimeoutError},
		{"io", NewIOError("x", nil), IsIOError},
		{"internal", NewInternalError("x", nil), IsInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}
