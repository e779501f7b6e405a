package reducer

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/ambrosia/pkg/schema"
)

const envelopeSchemaURL = "https://ambrosia.dev/schemas/snippet.json"

// envelopeSchemaJSON constrains the shape the decoder relies on. Unknown
// properties are allowed; renderers add fields freely.
const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://ambrosia.dev/schemas/snippet.json",
  "type": "object",
  "properties": {
    "$ambrosia": { "type": "string" },
    "$id": { "type": "string" },
    "config": { "type": ["object", "null"] },
    "annotations": { "type": ["array", "null"] },
    "components": { "type": ["array", "null"], "items": { "type": "object" } },
    "children": { "type": ["array", "null"] }
  }
}`

// Validator checks raw snippets before they are decoded. Safe for concurrent use.
type Validator struct {
	envelope *jsonschema.Schema
}

// NewValidator compiles the snippet envelope schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal snippet schema: %w", err)
	}
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add snippet schema resource: %w", err)
	}
	compiled, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile snippet schema: %w", err)
	}
	return &Validator{envelope: compiled}, nil
}

// Validate reports a REDUCER_ERROR naming the element when raw is not a
// well-formed snippet.
func (v *Validator) Validate(elementID, raw string) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return reduceError(elementID, "decode snippet", "snippet is not valid JSON: %v", err)
	}
	if err := v.envelope.Validate(inst); err != nil {
		violations := []string{err.Error()}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			violations = collectViolations(verr)
		}
		return schema.NewErrorf(schema.ErrCodeReducer, "malformed snippet: %s", violations[0]).
			WithElement(elementID).
			WithDetails(map[string]any{"operation": "validate snippet", "violations": violations})
	}
	return nil
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
