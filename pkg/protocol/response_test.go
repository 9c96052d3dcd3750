package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/tfanygen/pkg/filedesc"
	"github.com/cgast/tfanygen/pkg/value"
)

func resultMap(t *testing.T, doc string) *value.Map {
	t.Helper()
	v, err := value.Unmarshal([]byte(doc))
	require.NoError(t, err)
	m, ok := v.Map()
	require.True(t, ok)
	return m
}

func TestFinalizeResponsePassThrough(t *testing.T) {
	result := resultMap(t, `{"name": "demo", "tpl": {"$template": {"name": "a.j2", "text": "rendered"}}}`)

	resp, err := FinalizeResponse(result, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Response{"name": "demo", "tpl": "rendered"}, resp)
}

func TestFinalizeResponseRendersArchives(t *testing.T) {
	result := resultMap(t, `{
		"name": "demo",
		"$shars": {
			"install": {"files": [{"destination": "etc/app.conf", "content": "x"}]},
			"empty": {}
		}
	}`)

	resp, err := FinalizeResponse(result, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "install", "empty"}, result.Keys())
	assert.False(t, result.Has(SharsKey))
	assert.True(t, strings.HasPrefix(resp["install"], "#!/bin/sh\n"))
	assert.Contains(t, resp["install"], "etc/app.conf")
	assert.True(t, strings.HasSuffix(resp["empty"], "exit 0\n"))
}

func TestFinalizeResponseShadowedKey(t *testing.T) {
	result := resultMap(t, `{"install": "x", "$shars": {"install": {}}}`)

	_, err := FinalizeResponse(result, t.TempDir())
	var shadowed *ShadowedKeyError
	require.True(t, errors.As(err, &shadowed), "got %v", err)
	assert.Equal(t, "install", shadowed.Key)
	assert.Equal(t, "$shars.install: already present in result", err.Error())
}

func TestFinalizeResponseArchiveErrorKeepsEarlierArchives(t *testing.T) {
	result := resultMap(t, `{"$shars": {
		"good": {"files": []},
		"bad": {"files": [], "bogus": true}
	}}`)

	_, err := FinalizeResponse(result, t.TempDir())
	var archiveErr *ArchiveError
	require.True(t, errors.As(err, &archiveErr), "got %v", err)
	assert.Equal(t, "bad", archiveErr.Key)

	var unrecognized *filedesc.UnrecognizedFieldError
	assert.True(t, errors.As(err, &unrecognized))

	assert.True(t, result.Has("good"))
	assert.False(t, result.Has("bad"))
}

func TestFinalizeResponseSharsMustBeMapping(t *testing.T) {
	result := resultMap(t, `{"$shars": ["x"]}`)
	_, err := FinalizeResponse(result, t.TempDir())
	assert.Error(t, err)
}

func TestFinalizeResponseNonStringValue(t *testing.T) {
	result := resultMap(t, `{"ok": "x", "count": 3}`)

	_, err := FinalizeResponse(result, t.TempDir())
	var nonString *NonStringValueError
	require.True(t, errors.As(err, &nonString), "got %v", err)
	assert.Equal(t, "count", nonString.Key)
	assert.Equal(t, value.KindNumber, nonString.Kind)
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, Response{"html": "<a>&</a>"}))
	assert.Equal(t, "{\"html\":\"<a>&</a>\"}\n", buf.String())

	var doc any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NoError(t, ValidateResponse(doc))
}

func TestValidateResponseRejectsNonStrings(t *testing.T) {
	assert.Error(t, ValidateResponse(map[string]any{"n": 1.0}))
	assert.Error(t, ValidateResponse([]any{"x"}))
	assert.NoError(t, ValidateResponse(map[string]any{}))
}
