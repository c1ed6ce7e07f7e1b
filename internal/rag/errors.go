package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every pipeline stage. Callers match them with
// errors.Is; concrete errors wrap one of these.
var (
	// ErrIO reports a missing or unreadable input or index location.
	ErrIO = errors.New("io error")

	// ErrModelLoad reports that an embedding or generation model could not be
	// obtained (unreachable backend, unknown model, model still loading).
	ErrModelLoad = errors.New("model load error")

	// ErrDimensionMismatch reports a vector whose dimension or embedding model
	// differs from the one the index was built with.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrGeneration reports a failed or empty text generation.
	ErrGeneration = errors.New("generation error")

	// ErrRender reports a failure writing an output document.
	ErrRender = errors.New("render error")

	// ErrTimeout reports that an embedding or generation call exceeded its deadline.
	ErrTimeout = errors.New("timeout")
)

// DimensionMismatchError describes an incompatible query or entry vector.
type DimensionMismatchError struct {
	// WantDim is the dimension the index holds.
	WantDim int
	// GotDim is the dimension of the offending vector.
	GotDim int
	// WantModel is the embedding model the index was built with.
	WantModel string
	// GotModel is the embedding model of the offending vector.
	GotModel string
}

// Error implements error.
func (e *DimensionMismatchError) Error() string {
	if e.WantDim != e.GotDim {
		return fmt.Sprintf("dimension mismatch: index has %d, vector has %d", e.WantDim, e.GotDim)
	}
	return fmt.Sprintf("embedding model mismatch: index built with %q, vector from %q", e.WantModel, e.GotModel)
}

// Is makes errors.Is(err, ErrDimensionMismatch) succeed.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// checkCompatible returns a *DimensionMismatchError when v cannot be compared
// with vectors of the given dimension and model.
func checkCompatible(dim int, model string, v Embedding) error {
	if v.Dimension() != dim || v.Model != model {
		return &DimensionMismatchError{
			WantDim:   dim,
			GotDim:    v.Dimension(),
			WantModel: model,
			GotModel:  v.Model,
		}
	}
	return nil
}
