package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an invalid hyperparameter or an unresolvable
	// holiday calendar.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFitted reports a predict or serialize call on a model that has no
	// fitted parameters.
	ErrNotFitted = errors.New("model has not been fit")
	// ErrAlreadyFitted reports a configuration change attempted after fit.
	ErrAlreadyFitted = errors.New("model has already been fit")
	// ErrInvalidFrequency reports an unparseable cadence specification.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrDeserialization reports a malformed or incomplete model document.
	ErrDeserialization = errors.New("deserialization error")
	// ErrMissingParameters reports a warm-start extraction from an unfitted model.
	ErrMissingParameters = errors.New("missing fitted parameters")
)

// DeserializationError names the model attribute that failed to decode.
type DeserializationError struct {
	Attribute string
	Err       error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization error for attribute %q: %v", e.Attribute, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// Is reports ErrDeserialization as a match so callers need not know the attribute.
func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}
