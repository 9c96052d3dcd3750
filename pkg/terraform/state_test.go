package terraform

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestModuleOutputs(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		want    map[string]any
		wantErr error
	}{
		{
			name: "v3 body module",
			state: `{"version": 3, "modules": [
				{"path": ["root"], "outputs": {"ignored": {"value": "x"}}},
				{"path": ["root", "body"], "outputs": {"ip": {"sensitive": false, "type": "string", "value": "10.0.0.1"}, "count": {"value": 2}}}
			]}`,
			want: map[string]any{"ip": "10.0.0.1", "count": json.Number("2")},
		},
		{
			name:    "v3 without body module",
			state:   `{"version": 3, "modules": [{"path": ["root"], "outputs": {}}]}`,
			wantErr: ErrBodyModuleNotFound,
		},
		{
			name:  "v4 root outputs",
			state: `{"version": 4, "outputs": {"ip": {"value": "10.0.0.1", "type": "string"}}, "resources": []}`,
			want:  map[string]any{"ip": "10.0.0.1"},
		},
		{
			name:  "v4 empty outputs",
			state: `{"version": 4, "outputs": {}}`,
			want:  map[string]any{},
		},
		{
			name:    "v4 missing outputs",
			state:   `{"version": 4}`,
			wantErr: ErrBodyModuleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ModuleOutputs([]byte(tt.state))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ModuleOutputs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %#v, want %#v", k, got[k], v)
				}
			}
		})
	}
}

func TestModuleOutputsInvalidJSON(t *testing.T) {
	if _, err := ModuleOutputs([]byte("{")); err == nil {
		t.Error("expected error")
	}
}

func TestModuleOutputsErrorMessage(t *testing.T) {
	_, err := ModuleOutputs([]byte(`{"version": 3}`))
	if err == nil || err.Error() != "failed to find 'body' module in terraform state" {
		t.Errorf("err = %v", err)
	}
}
