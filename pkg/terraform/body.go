package terraform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cgast/tfanygen/pkg/protocol"
	"github.com/cgast/tfanygen/pkg/value"
)

// Result keys read from the main generation result.
const (
	KeyTerraform = "terraform"
	KeyAnygen    = "anygen"
	KeyOutput    = "output"
	KeyBackend   = "backend"
	KeyOnSuccess = "on_success"
)

// BodyModule is the name of the module holding the generated resources.
const BodyModule = "body"

// BodyOptions controls BuildBody.
type BodyOptions struct {
	Destroy bool
	// Program is the external data program, e.g. [tfanygen gen --config x].
	Program []string
	// Path holds the absolute generator search roots.
	Path []string
	// DebugDir, when set, receives one dump per external data source.
	DebugDir string
}

// BuildBody builds the body module configuration from a generation result.
//
// The "terraform" subtree is merged in as is. When destroying only its
// providers are kept. Otherwise every "anygen" entry becomes an external
// data source that calls back into the generator and every "output" entry
// becomes a module output.
func BuildBody(result *value.Map, opts BodyOptions) (map[string]any, error) {
	body := map[string]any{}
	if tf, ok := result.Get(KeyTerraform); ok && !tf.IsNull() {
		m, ok := tf.Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: must be a mapping, got %s", KeyTerraform, tf.Kind())
		}
		deepMerge(body, m)
	}

	if opts.Destroy {
		providers, ok := body["provider"]
		if !ok {
			providers = []any{}
		}
		return map[string]any{"provider": providers}, nil
	}

	external, err := externalSources(result, opts)
	if err != nil {
		return nil, err
	}
	if len(external) > 0 {
		deepMerge(body, map[string]any{"data": map[string]any{"external": external}})
	}

	if out, ok := result.Get(KeyOutput); ok && out.Truthy() {
		m, ok := out.Map()
		if !ok {
			return nil, fmt.Errorf("%s: must be a mapping, got %s", KeyOutput, out.Kind())
		}
		outputs := make(map[string]any, m.Len())
		for _, k := range m.Keys() {
			v, _ := m.Get(k)
			outputs[k] = map[string]any{"value": v.Interface()}
		}
		deepMerge(body, map[string]any{"output": outputs})
	}
	return body, nil
}

func externalSources(result *value.Map, opts BodyOptions) (map[string]any, error) {
	v, ok := result.Get(KeyAnygen)
	if !ok || v.IsNull() {
		return nil, nil
	}
	entries, ok := v.Map()
	if !ok {
		return nil, fmt.Errorf("%s: must be a mapping, got %s", KeyAnygen, v.Kind())
	}

	external := make(map[string]any, entries.Len())
	for _, name := range entries.Keys() {
		ev, _ := entries.Get(name)
		src, err := parseSource(ev)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", KeyAnygen, name, err)
		}

		req := protocol.Request{Path: opts.Path, Classes: src.classes, Args: src.args}
		if opts.DebugDir != "" {
			req.DebugDump = filepath.Join(opts.DebugDir, "anygen."+name)
		}
		q, err := protocol.ToQuery(req)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", KeyAnygen, name, err)
		}
		for k, expr := range src.exprs {
			q[protocol.ArgPrefix+k] = jsonencodeTemplate(expr)
		}

		external[name] = map[string]any{
			"program": opts.Program,
			"query":   map[string]string(q),
		}
	}
	return external, nil
}

type source struct {
	classes []string
	args    map[string]any
	exprs   map[string]string
}

// parseSource reads one "anygen" entry: "classes" (comma separated string
// or list), optional "args" passed as literal values and optional "exprs"
// holding string templates that terraform evaluates before the call.
func parseSource(v value.Value) (source, error) {
	m, ok := v.Map()
	if !ok {
		return source{}, fmt.Errorf("must be a mapping, got %s", v.Kind())
	}

	var src source
	cv, _ := m.Get("classes")
	if s, ok := cv.Str(); ok {
		src.classes = strings.Split(s, ",")
	} else if seq, ok := cv.Seq(); ok {
		for i, item := range seq {
			s, ok := item.Str()
			if !ok {
				return source{}, fmt.Errorf("classes[%d]: must be a string, got %s", i, item.Kind())
			}
			src.classes = append(src.classes, s)
		}
	}
	if len(src.classes) == 0 {
		return source{}, fmt.Errorf("classes: required")
	}

	if av, ok := m.Get("args"); ok && !av.IsNull() {
		args, ok := av.Interface().(map[string]any)
		if !ok {
			return source{}, fmt.Errorf("args: must be a mapping, got %s", av.Kind())
		}
		src.args = args
	}

	if ev, ok := m.Get("exprs"); ok && !ev.IsNull() {
		em, ok := ev.Map()
		if !ok {
			return source{}, fmt.Errorf("exprs: must be a mapping, got %s", ev.Kind())
		}
		src.exprs = make(map[string]string, em.Len())
		for _, k := range em.Keys() {
			item, _ := em.Get(k)
			s, ok := item.Str()
			if !ok {
				return source{}, fmt.Errorf("exprs.%s: must be a string, got %s", k, item.Kind())
			}
			src.exprs[k] = s
		}
	}
	return src, nil
}

var hclStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// jsonencodeTemplate wraps a terraform string template so that its
// evaluated result reaches the generator as a JSON string.
func jsonencodeTemplate(tmpl string) string {
	return `${jsonencode("` + hclStringEscaper.Replace(tmpl) + `")}`
}

// BuildRoot builds the root module: the body module, the optional backend
// and one root output forwarding each body output.
func BuildRoot(result *value.Map, outputs []string) map[string]any {
	root := map[string]any{
		"module": map[string]any{
			BodyModule: map[string]any{"source": "./" + BodyModule},
		},
	}
	if backend, ok := result.Get(KeyBackend); ok && !backend.IsNull() {
		root["terraform"] = map[string]any{"backend": backend.Interface()}
	}
	if len(outputs) > 0 {
		forwarded := make(map[string]any, len(outputs))
		for _, name := range outputs {
			forwarded[name] = map[string]any{
				"value": fmt.Sprintf("${module.%s.%s}", BodyModule, name),
			}
		}
		root["output"] = forwarded
	}
	return root
}

// OutputNames returns the sorted output names of a body configuration.
func OutputNames(body map[string]any) []string {
	outputs, _ := body["output"].(map[string]any)
	names := make([]string, 0, len(outputs))
	for k := range outputs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// deepMerge merges src into dst. Nested mappings merge recursively; any
// other value in src replaces the one in dst.
func deepMerge(dst, src map[string]any) {
	for k, sv := range src {
		sm, sok := sv.(map[string]any)
		dm, dok := dst[k].(map[string]any)
		if sok && dok {
			deepMerge(dm, sm)
			continue
		}
		if sok {
			copied := make(map[string]any, len(sm))
			deepMerge(copied, sm)
			dst[k] = copied
			continue
		}
		dst[k] = sv
	}
}

// WriteJSON writes data as indented JSON with sorted keys.
func WriteJSON(path string, data any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
