package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Lazy wraps encoded data and decodes on demand for CPU saving.
//
// RPC responses carry it so clients defer decoding until Load, and a
// received value re-marshals to the exact bytes it arrived as.
type Lazy[T any] struct {
	encoded []byte
}

func NewLazy[T any](v T) (Lazy[T], error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return Lazy[T]{}, errors.WithMessage(err, "Failed to json marshal value")
	}

	return Lazy[T]{encoded}, nil
}

// MarshalJSON implements the json.Marshaler interface.
func (lazy Lazy[T]) MarshalJSON() ([]byte, error) {
	if len(lazy.encoded) > 0 {
		return lazy.encoded, nil
	}

	// marshal default value if not constructed from JSON
	var val T
	return json.Marshal(val)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (lazy *Lazy[T]) UnmarshalJSON(v []byte) error {
	lazy.encoded = v
	return nil
}

// Load returns the decoded data.
func (lazy *Lazy[T]) Load() (val T, err error) {
	// return default value if not constructed from JSON
	if len(lazy.encoded) == 0 {
		return
	}

	err = json.Unmarshal(lazy.encoded, &val)
	return
}
