package shar

import (
	"fmt"

	"github.com/cgast/tfanygen/pkg/filedesc"
	"github.com/cgast/tfanygen/pkg/value"
)

// DefaultShebang is the interpreter used when a spec names none.
const DefaultShebang = "/bin/sh"

// TagMode is one chmod directive: every file tagged Tag gets Mode.
type TagMode struct {
	Tag  string
	Mode string
}

// Spec describes one self-extracting archive.
type Spec struct {
	Files   []filedesc.Descriptor
	Chmod   []TagMode // declared order
	Pre     []string
	Post    []string
	Shebang string
}

// ParseSpec reads an archive mapping. Recognized keys are files, chmod,
// pre, post and shebang; anything else is an *filedesc.UnrecognizedFieldError.
func ParseSpec(v value.Value) (Spec, error) {
	src, ok := v.Map()
	if !ok {
		return Spec{}, fmt.Errorf("archive must be a mapping, got %s", v.Kind())
	}
	m := src.Clone()
	spec := Spec{Shebang: DefaultShebang}

	if filesV, ok := m.Pop("files"); ok && !filesV.IsNull() {
		items, ok := filesV.Seq()
		if !ok {
			return Spec{}, fmt.Errorf("'files' must be a list, got %s", filesV.Kind())
		}
		for i, item := range items {
			d, err := filedesc.Parse(item)
			if err != nil {
				return Spec{}, fmt.Errorf("files[%d]: %w", i, err)
			}
			spec.Files = append(spec.Files, d)
		}
	}

	if chmodV, ok := m.Pop("chmod"); ok && !chmodV.IsNull() {
		cm, ok := chmodV.Map()
		if !ok {
			return Spec{}, fmt.Errorf("'chmod' must be a mapping, got %s", chmodV.Kind())
		}
		for _, tag := range cm.Keys() {
			modeV, _ := cm.Get(tag)
			mode, err := modeString(modeV)
			if err != nil {
				return Spec{}, fmt.Errorf("chmod.%s: %w", tag, err)
			}
			spec.Chmod = append(spec.Chmod, TagMode{Tag: tag, Mode: mode})
		}
	}

	var err error
	if spec.Pre, err = popCommands(m, "pre"); err != nil {
		return Spec{}, err
	}
	if spec.Post, err = popCommands(m, "post"); err != nil {
		return Spec{}, err
	}

	if shebangV, ok := m.Pop("shebang"); ok {
		s, ok := shebangV.Str()
		if !ok {
			return Spec{}, fmt.Errorf("'shebang' must be a string, got %s", shebangV.Kind())
		}
		if s != "" {
			spec.Shebang = s
		}
	}

	if err := filedesc.Leftover("archive", m); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func modeString(v value.Value) (string, error) {
	if s, ok := v.Str(); ok && s != "" {
		return s, nil
	}
	if n, ok := v.Number(); ok {
		return n.String(), nil
	}
	return "", fmt.Errorf("mode must be a non-empty string, got %s", v.Kind())
}

func popCommands(m *value.Map, key string) ([]string, error) {
	v, ok := m.Pop(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	items, ok := v.Seq()
	if !ok {
		return nil, fmt.Errorf("'%s' must be a list of commands, got %s", key, v.Kind())
	}
	cmds := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.Str()
		if !ok {
			return nil, fmt.Errorf("%s[%d]: command must be a string, got %s", key, i, item.Kind())
		}
		cmds = append(cmds, s)
	}
	return cmds, nil
}
