package terraform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBodyModuleNotFound is returned when the state carries no body module
// outputs.
var ErrBodyModuleNotFound = errors.New("failed to find 'body' module in terraform state")

type stateOutput struct {
	Value any `json:"value"`
}

type stateModule struct {
	Path    []string               `json:"path"`
	Outputs map[string]stateOutput `json:"outputs"`
}

type stateDocument struct {
	Version int                    `json:"version"`
	Modules []stateModule          `json:"modules"`
	Outputs map[string]stateOutput `json:"outputs"`
}

// ModuleOutputs extracts the body module outputs from a pulled state.
//
// State format 3 lists every module with its outputs. Format 4 only keeps
// root outputs, which BuildRoot forwards from the body module.
func ModuleOutputs(state []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(state))
	dec.UseNumber()
	var doc stateDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse terraform state: %w", err)
	}

	var outputs map[string]stateOutput
	switch {
	case doc.Version >= 4:
		if doc.Outputs == nil {
			return nil, ErrBodyModuleNotFound
		}
		outputs = doc.Outputs
	default:
		found := false
		for _, m := range doc.Modules {
			if len(m.Path) == 2 && m.Path[0] == "root" && m.Path[1] == BodyModule {
				outputs, found = m.Outputs, true
				break
			}
		}
		if !found {
			return nil, ErrBodyModuleNotFound
		}
	}

	values := make(map[string]any, len(outputs))
	for k, o := range outputs {
		values[k] = o.Value
	}
	return values, nil
}
