package resolver

import "fmt"

// Kind classifies a configuration error.
type Kind string

const (
	UnsupportedStandard    Kind = "unsupported standard"
	ToolchainTooOld        Kind = "toolchain too old"
	UnsupportedRuntimeMode Kind = "unsupported runtime mode"
	UnknownOption          Kind = "unknown option"
	InvalidOptionValue     Kind = "invalid option value"
	InvalidSetting         Kind = "invalid setting"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrUnsupportedStandard    = &ConfigError{Kind: UnsupportedStandard}
	ErrToolchainTooOld        = &ConfigError{Kind: ToolchainTooOld}
	ErrUnsupportedRuntimeMode = &ConfigError{Kind: UnsupportedRuntimeMode}
	ErrUnknownOption          = &ConfigError{Kind: UnknownOption}
	ErrInvalidOptionValue     = &ConfigError{Kind: InvalidOptionValue}
	ErrInvalidSetting         = &ConfigError{Kind: InvalidSetting}
)

// ConfigError reports why a configuration cannot be built.
// Retrying with the same inputs always reproduces it.
type ConfigError struct {
	Kind   Kind
	Recipe string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Recipe == "" {
		return fmt.Sprintf("invalid configuration (%s): %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s (%s): %s", e.Recipe, e.Kind, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches any ConfigError of the same kind.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	return ok && t.Kind == e.Kind
}
