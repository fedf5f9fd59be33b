package errors

import sterrors "errors"

var (
	ErrServiceRequired    = sterrors.New("packflow: runtime service is required")
	ErrRuntimeRequired    = sterrors.New("packflow: pack runtime is required")
	ErrRegistryRequired   = sterrors.New("packflow: handler registry is required")
	ErrPublisherRequired  = sterrors.New("packflow: publisher is required")
	ErrTopicRequired      = sterrors.New("packflow: topic is required")
	ErrProviderRequired   = sterrors.New("packflow: provider is required")
	ErrBindingIDRequired  = sterrors.New("packflow: binding id is required")
	ErrResourceRequired   = sterrors.New("packflow: resource is required for subscription ensure")
	ErrConfigRequired     = sterrors.New("packflow: configuration is required")
	ErrLoggerRequired     = sterrors.New("packflow: logger is required")
	ErrStoreDirRequired   = sterrors.New("packflow: state directory is required")
	ErrSubscriptionFailed = sterrors.New("packflow: subscription exhausted its renewal attempts")
)

// ConfigValidationError wraps configuration validation failures so callers can
// distinguish them from runtime errors.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "packflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err in a ConfigValidationError. Returns nil
// when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
