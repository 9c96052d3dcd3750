package protocol

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const querySchema = `{
  "type": "object",
  "required": ["path", "classes"],
  "properties": {
    "path": {"type": "string"},
    "classes": {"type": "string", "minLength": 1},
    "debug_dump": {"type": "string"}
  },
  "patternProperties": {
    "^arg_.+$": {"type": "string"}
  },
  "additionalProperties": false
}`

const responseSchema = `{
  "type": "object",
  "additionalProperties": {"type": "string"}
}`

var (
	queryValidator    = compileSchema("query.json", querySchema)
	responseValidator = compileSchema("response.json", responseSchema)
)

func compileSchema(id, schema string) *jsonschema.Schema {
	resourceID := "inmemory://tfanygen/" + id
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", id, err))
	}
	return compiler.MustCompile(resourceID)
}

// ValidateQuery checks a decoded JSON document against the query shape.
func ValidateQuery(doc any) error {
	if err := queryValidator.Validate(doc); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	return nil
}

// ValidateResponse checks a decoded JSON document against the response
// shape: an object whose every value is a string.
func ValidateResponse(doc any) error {
	if err := responseValidator.Validate(doc); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}
