package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrServiceRequired", ErrServiceRequired, "packflow: runtime service is required"},
		{"ErrRuntimeRequired", ErrRuntimeRequired, "packflow: pack runtime is required"},
		{"ErrRegistryRequired", ErrRegistryRequired, "packflow: handler registry is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "packflow: publisher is required"},
		{"ErrTopicRequired", ErrTopicRequired, "packflow: topic is required"},
		{"ErrProviderRequired", ErrProviderRequired, "packflow: provider is required"},
		{"ErrBindingIDRequired", ErrBindingIDRequired, "packflow: binding id is required"},
		{"ErrConfigRequired", ErrConfigRequired, "packflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "packflow: logger is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "packflow: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if err := NewConfigValidationError(nil); err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("errors.Is works with wrapped error", func(t *testing.T) {
		inner := errors.New("specific error")
		err := NewConfigValidationError(inner)

		if !errors.Is(err, inner) {
			t.Error("errors.Is should match wrapped error")
		}
	})
}
