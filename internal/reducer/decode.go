package reducer

import (
	"encoding/json"
	"strings"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Decode parses raw into the variant chosen by elementType. Numbers are
// kept as json.Number so re-encoding preserves them exactly. Top-level
// fields the variant does not declare land in Envelope.Extra.
func Decode(elementType schema.ElementType, elementID, raw string) (Snippet, error) {
	var s Snippet
	switch elementType {
	case schema.ElementTypeActivity:
		s = &Activity{}
	case schema.ElementTypePathway:
		s = &Pathway{}
	case schema.ElementTypeInteractive:
		s = &Interactive{}
	case schema.ElementTypeComponent:
		s = &Component{}
	default:
		return nil, reduceError(elementID, "decode snippet", "unknown element type %q", elementType)
	}

	if err := decodeNumbers(raw, s); err != nil {
		return nil, decodeError(elementType, elementID, err)
	}
	var fields map[string]any
	if err := decodeNumbers(raw, &fields); err != nil {
		return nil, decodeError(elementType, elementID, err)
	}

	env := s.envelope()
	for k, v := range fields {
		if isDeclared(elementType, k) {
			continue
		}
		if env.Extra == nil {
			env.Extra = make(map[string]any)
		}
		env.Extra[k] = v
	}
	if env.ElementID == "" {
		env.ElementID = elementID
	}
	env.ExportMetadata = nil
	normalize(s)
	return s, nil
}

func decodeNumbers(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func decodeError(elementType schema.ElementType, elementID string, err error) error {
	return schema.NewErrorf(schema.ErrCodeReducer, "decode %s snippet: %v", elementType, err).
		WithElement(elementID).
		WithDetails(map[string]any{"operation": "decode snippet"}).
		WithCause(err)
}

func normalize(s Snippet) {
	switch v := s.(type) {
	case *Activity:
		v.Annotations = orEmpty(v.Annotations)
	case *Interactive:
		v.Annotations = orEmpty(v.Annotations)
	case *Pathway:
		v.Annotations = orEmpty(v.Annotations)
		v.Children = orEmpty(v.Children)
	case *Component:
		v.Annotations = orEmpty(v.Annotations)
	}
}
