package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cgast/tfanygen/pkg/shar"
	"github.com/cgast/tfanygen/pkg/value"
)

// SharsKey holds archive specs in a generation result.
const SharsKey = "$shars"

// Response is the string map written back to the orchestrator.
type Response map[string]string

// ArchiveError reports a $shars entry that could not be rendered.
type ArchiveError struct {
	Key string
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("%s.%s: %v", SharsKey, e.Key, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// ShadowedKeyError reports a $shars key that collides with a result key.
type ShadowedKeyError struct {
	Key string
}

func (e *ShadowedKeyError) Error() string {
	return fmt.Sprintf("%s.%s: already present in result", SharsKey, e.Key)
}

// NonStringValueError reports a result value the orchestrator cannot accept.
type NonStringValueError struct {
	Key  string
	Kind value.Kind
}

func (e *NonStringValueError) Error() string {
	return fmt.Sprintf("result.%s: external data values must be strings, got %s", e.Key, e.Kind)
}

// FinalizeResponse renders every $shars entry into result, in order, and
// flattens result into a Response. Each archive is stored as its script
// text under its own key. On failure, archives rendered before the failing
// one remain in result.
func FinalizeResponse(result *value.Map, searchRoot string) (Response, error) {
	if sharsV, ok := result.Pop(SharsKey); ok && !sharsV.IsNull() {
		shars, ok := sharsV.Map()
		if !ok {
			return nil, fmt.Errorf("%s: must be a mapping, got %s", SharsKey, sharsV.Kind())
		}
		for _, key := range shars.Keys() {
			if result.Has(key) {
				return nil, &ShadowedKeyError{Key: key}
			}
			specV, _ := shars.Get(key)
			spec, err := shar.ParseSpec(specV)
			if err != nil {
				return nil, &ArchiveError{Key: key, Err: err}
			}
			script, err := shar.Render(spec, searchRoot)
			if err != nil {
				return nil, &ArchiveError{Key: key, Err: err}
			}
			result.Set(key, value.String(string(script)))
		}
	}

	resp := make(Response, result.Len())
	for _, key := range result.Keys() {
		v, _ := result.Get(key)
		s, ok := v.Str()
		if !ok {
			return nil, &NonStringValueError{Key: key, Kind: v.Kind()}
		}
		resp[key] = s
	}
	return resp, nil
}

// WriteResponse encodes resp as a single JSON object.
func WriteResponse(w io.Writer, resp Response) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
