package reducer

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Snippet is the typed form of one element's rendered output. Reduce merges
// an already fully reduced child into the receiver and reports whether the
// receiver referenced it.
type Snippet interface {
	Type() schema.ElementType
	ID() string
	Reduce(child Snippet) (bool, error)
	envelope() *Envelope
}

// Envelope holds the fields every variant shares. Field order here is the
// serialized order.
type Envelope struct {
	Descriptor     string          `json:"$ambrosia"`
	ElementID      string          `json:"$id"`
	ExportMetadata *ExportMetadata `json:"$exportMetadata,omitempty"`
	Config         map[string]any  `json:"config"`

	// Extra holds undeclared top-level fields. They encode after the
	// declared fields, sorted by key.
	Extra map[string]any `json:"-"`
}

func (e *Envelope) ID() string          { return e.ElementID }
func (e *Envelope) envelope() *Envelope { return e }

// Activity is a screen-level container of components and embedded pathways.
type Activity struct {
	Envelope
	Components  []any `json:"components,omitempty"`
	Theme       any   `json:"theme,omitempty"`
	Annotations []any `json:"annotations"`
}

// Pathway orders activities and interactives through its children list.
type Pathway struct {
	Envelope
	Children    []any `json:"children"`
	Annotations []any `json:"annotations"`
}

// Interactive is a self-contained exercise holding components.
type Interactive struct {
	Envelope
	Components  []any `json:"components,omitempty"`
	Theme       any   `json:"theme,omitempty"`
	Annotations []any `json:"annotations"`
}

// Component is a leaf. It is never a merge target.
type Component struct {
	Envelope
	Plugin      any   `json:"plugin,omitempty"`
	Annotations []any `json:"annotations"`
}

func (*Activity) Type() schema.ElementType    { return schema.ElementTypeActivity }
func (*Pathway) Type() schema.ElementType     { return schema.ElementTypePathway }
func (*Interactive) Type() schema.ElementType { return schema.ElementTypeInteractive }
func (*Component) Type() schema.ElementType   { return schema.ElementTypeComponent }

// declared lists the top-level keys each variant encodes itself.
var declared = map[schema.ElementType][]string{
	schema.ElementTypeActivity:    {"components", "theme", "annotations"},
	schema.ElementTypePathway:     {"children", "annotations"},
	schema.ElementTypeInteractive: {"components", "theme", "annotations"},
	schema.ElementTypeComponent:   {"plugin", "annotations"},
}

func isDeclared(t schema.ElementType, key string) bool {
	switch key {
	case "$ambrosia", "$id", "$exportMetadata", "config":
		return true
	}
	return slices.Contains(declared[t], key)
}

func (a *Activity) MarshalJSON() ([]byte, error) {
	type plain Activity
	return encodeWithExtra((*plain)(a), a.Type(), a.Extra)
}

func (p *Pathway) MarshalJSON() ([]byte, error) {
	type plain Pathway
	return encodeWithExtra((*plain)(p), p.Type(), p.Extra)
}

func (i *Interactive) MarshalJSON() ([]byte, error) {
	type plain Interactive
	return encodeWithExtra((*plain)(i), i.Type(), i.Extra)
}

func (c *Component) MarshalJSON() ([]byte, error) {
	type plain Component
	return encodeWithExtra((*plain)(c), c.Type(), c.Extra)
}

// encodeWithExtra encodes v and appends the undeclared fields of extra in
// key order.
func encodeWithExtra(v any, t schema.ElementType, extra map[string]any) ([]byte, error) {
	base, err := encode(v)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !isDeclared(t, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return base, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		name, err := encode(k)
		if err != nil {
			return nil, err
		}
		val, err := encode(extra[k])
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Activity) Reduce(child Snippet) (bool, error) {
	switch c := child.(type) {
	case *Pathway:
		return embedPathway(a.ElementID, a.Config, c)
	case *Component:
		return embedComponent(a.ElementID, a.Components, a.Config, c)
	default:
		return false, unsupported(a, child)
	}
}

func (i *Interactive) Reduce(child Snippet) (bool, error) {
	if c, ok := child.(*Component); ok {
		return embedComponent(i.ElementID, i.Components, i.Config, c)
	}
	return false, unsupported(i, child)
}

func (p *Pathway) Reduce(child Snippet) (bool, error) {
	switch child.(type) {
	case *Activity, *Interactive:
	default:
		return false, unsupported(p, child)
	}
	for idx, entry := range p.Children {
		switch v := entry.(type) {
		case string:
			if v == child.ID() {
				p.Children[idx] = child
				return true, nil
			}
		case map[string]any, Snippet:
		default:
			return false, reduceError(p.ElementID, "merge pathway child",
				"children[%d] is %T, expected string or object", idx, entry)
		}
	}
	return false, nil
}

func (c *Component) Reduce(child Snippet) (bool, error) {
	return false, reduceError(c.ElementID, "merge into component",
		"component %q cannot receive child %q: components are leaves", c.ElementID, child.ID())
}

func unsupported(parent, child Snippet) error {
	return reduceError(parent.ID(), "merge child",
		"%s cannot embed %s %q", parent.Type(), child.Type(), child.ID())
}

func reduceError(elementID, op, format string, args ...any) error {
	return schema.NewErrorf(schema.ErrCodeReducer, format, args...).
		WithElement(elementID).
		WithDetails(map[string]any{"operation": op})
}

// embedComponent replaces the components entry referencing c by itemId.
// Top-level components take precedence over config.components. Entry fields
// other than itemId are kept on c as extras.
func embedComponent(parentID string, components []any, config map[string]any, c *Component) (bool, error) {
	list := components
	field := "components"
	if list == nil {
		raw, ok := config["components"]
		if !ok || raw == nil {
			return false, nil
		}
		arr, ok := raw.([]any)
		if !ok {
			return false, reduceError(parentID, "merge component",
				"config.components is %T, expected array", raw)
		}
		list = arr
		field = "config.components"
	}

	match := -1
	for idx, entry := range list {
		if _, done := entry.(*Component); done {
			continue
		}
		m, ok := entry.(map[string]any)
		if !ok {
			return false, reduceError(parentID, "merge component",
				"%s[%d] is %T, expected object", field, idx, entry)
		}
		if id, _ := m["itemId"].(string); id == c.ElementID && match < 0 {
			match = idx
		}
	}
	if match < 0 {
		return false, nil
	}

	c.Annotations = orEmpty(c.Annotations)
	c.Extra = mergeScaffold(list[match].(map[string]any), c.Extra, c.Type(), "itemId")
	list[match] = c
	return true, nil
}

// embedPathway replaces the config object whose pathwayId names p. Only
// top-level config values are scanned: plain objects and arrays of objects.
func embedPathway(parentID string, config map[string]any, p *Pathway) (bool, error) {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := config[k].(type) {
		case map[string]any:
			ok, err := referencesPathway(parentID, k, v, p.ElementID)
			if err != nil {
				return false, err
			}
			if ok {
				config[k] = embedScaffold(v, p)
				return true, nil
			}
		case []any:
			for idx, entry := range v {
				m, isObj := entry.(map[string]any)
				if !isObj {
					continue
				}
				ok, err := referencesPathway(parentID, fmt.Sprintf("%s[%d]", k, idx), m, p.ElementID)
				if err != nil {
					return false, err
				}
				if ok {
					v[idx] = embedScaffold(m, p)
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func referencesPathway(parentID, path string, m map[string]any, pathwayID string) (bool, error) {
	raw, present := m["pathwayId"]
	if !present {
		return false, nil
	}
	id, ok := raw.(string)
	if !ok {
		return false, reduceError(parentID, "merge pathway",
			"config.%s.pathwayId is %T, expected string", path, raw)
	}
	return id == pathwayID, nil
}

func embedScaffold(scaffold map[string]any, p *Pathway) *Pathway {
	p.Annotations = orEmpty(p.Annotations)
	p.Children = orEmpty(p.Children)
	p.Extra = mergeScaffold(scaffold, p.Extra, p.Type(), "pathwayId", "pathwayType")
	return p
}

// mergeScaffold combines the reference object's fields, minus the reference
// keys and any declared key, with the child's own extras. The child wins on
// conflicts.
func mergeScaffold(scaffold, own map[string]any, t schema.ElementType, refKeys ...string) map[string]any {
	out := make(map[string]any, len(scaffold)+len(own))
	for k, v := range scaffold {
		if !slices.Contains(refKeys, k) && !isDeclared(t, k) {
			out[k] = v
		}
	}
	for k, v := range own {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func orEmpty(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

var (
	_ Snippet = (*Activity)(nil)
	_ Snippet = (*Pathway)(nil)
	_ Snippet = (*Interactive)(nil)
	_ Snippet = (*Component)(nil)
)
