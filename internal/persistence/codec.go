package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/petrijr/flux/pkg/api"
)

// EncodeState serializes a state snapshot using encoding/gob.
//
// Values stored in Input, Data and step Output travel as interfaces, so
// their concrete types must be registered with gob.Register. Maps, slices
// and scalars commonly used by workflows are registered by package api.
func EncodeState(state *api.WorkflowState) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeState deserializes a snapshot written by EncodeState.
func DecodeState(data []byte) (*api.WorkflowState, error) {
	if len(data) == 0 {
		return nil, ErrStateNotFound
	}
	var state api.WorkflowState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return nil, err
	}
	// gob does not transmit empty maps.
	if state.Data == nil {
		state.Data = make(map[string]any)
	}
	return &state, nil
}
