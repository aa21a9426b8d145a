package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchema               = errors.New("schema mismatch")
	ErrInsufficientMinority = errors.New("insufficient minority samples")
	ErrArtifactMismatch     = errors.New("artifact mismatch")
	ErrEmptyBatch           = errors.New("empty batch")
	ErrInvalidThreshold     = errors.New("threshold must be within [0, 1]")
	ErrUniformScores        = errors.New("all probabilities are identical")
	ErrInvalidInput         = errors.New("invalid input")
	ErrModelNotLoaded       = errors.New("model not loaded")
)

// SchemaError reports a batch or matrix that does not fit the feature schema.
type SchemaError struct {
	Missing []string
	Reason  string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("schema mismatch: missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return "schema mismatch: " + e.Reason
}

// Is makes errors.Is(err, ErrSchema) hold.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// InsufficientMinorityError is returned when oversampling cannot find enough
// minority neighbours to synthesize new points.
type InsufficientMinorityError struct {
	MinorityClass int
	MinorityCount int
	Neighbors     int
}

func (e *InsufficientMinorityError) Error() string {
	return fmt.Sprintf("insufficient minority samples: class %d has %d samples, need at least %d for %d neighbors",
		e.MinorityClass, e.MinorityCount, e.Neighbors+1, e.Neighbors)
}

func (e *InsufficientMinorityError) Is(target error) bool {
	return target == ErrInsufficientMinority
}

// ArtifactMismatchError is returned when the scaler and model in a bundle
// do not belong together or do not match the running schema.
type ArtifactMismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ArtifactMismatchError) Error() string {
	return fmt.Sprintf("artifact mismatch: %s expected %q, got %q", e.Field, e.Expected, e.Actual)
}

func (e *ArtifactMismatchError) Is(target error) bool {
	return target == ErrArtifactMismatch
}
