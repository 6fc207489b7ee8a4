package calib

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateRay is wrapped by GeometryError when a ray has zero length in the working plane
	ErrDegenerateRay = errors.New("degenerate ray")
	// ErrConfiguration is wrapped by every ConfigurationError
	ErrConfiguration = errors.New("invalid calibration configuration")
)

// GeometryError reports a geometric input the engine cannot evaluate
type GeometryError struct {
	Op     string
	Label  string
	Detail string
}

func (e *GeometryError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, ErrDegenerateRay)
	if e.Label != "" {
		msg += fmt.Sprintf(" (observation %q)", e.Label)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *GeometryError) Unwrap() error { return ErrDegenerateRay }

// ConfigurationError reports inputs or settings that make a search impossible
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
