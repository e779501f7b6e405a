// Package reducer merges independently rendered element snippets back into
// one nested ambrosia document that mirrors the courseware tree.
//
// Reduction is pure: callers fetch snippets, the tree and the ancestry chain
// beforehand. Any structural problem aborts the whole reduction.
package reducer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/ambrosia/internal/courseware"
	"github.com/rendis/ambrosia/pkg/schema"
)

// ErrMissingRoot is the message raised when the root element has no snippet.
const ErrMissingRoot = "snippet not found for top level exported element."

// ExportMetadata is attached to the root snippet of a finished reduction.
type ExportMetadata struct {
	ExportID              string              `json:"exportId"`
	ExportType            schema.ExportType   `json:"exportType"`
	StartedAt             time.Time           `json:"startedAt"`
	CompletedAt           time.Time           `json:"completedAt"`
	CompletedTimeID       string              `json:"completedTimeId"`
	ElementsExportedCount int                 `json:"elementsExportedCount"`
	Ancestry              []schema.ElementRef `json:"ancestry"`
	Metadata              json.RawMessage     `json:"metadata,omitempty"`
}

// Input is the snapshot a reduction consumes.
type Input struct {
	// Snippets maps element id to raw snippet JSON.
	Snippets map[string]string
	Tree     *courseware.Node
	Summary  *schema.ExportSummary
	// Ancestry of the root element, nearest ancestor first.
	Ancestry []schema.ElementRef
}

// Result is a completed reduction.
type Result struct {
	Root     Snippet
	Metadata *ExportMetadata
	// Unmatched lists merged children their parent never referenced. They
	// count as exported but do not appear in Root.
	Unmatched []Unmatched
}

// Unmatched is a child snippet with no reference in its parent.
type Unmatched struct {
	ParentID string
	ChildID  string
}

// Reducer runs reductions. Safe for concurrent use.
type Reducer struct {
	validator *Validator
	newID     func() (uuid.UUID, error)
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithIDSource overrides the completion id generator. Ids must be UUIDv7.
func WithIDSource(fn func() (uuid.UUID, error)) Option {
	return func(r *Reducer) { r.newID = fn }
}

// New creates a Reducer with the snippet envelope schema compiled.
func New(opts ...Option) (*Reducer, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	r := &Reducer{validator: v, newID: uuid.NewV7}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reduce merges every snippet present in the tree into the root snippet,
// children before parents, and attaches export metadata to the root.
// Tree nodes without a snippet are skipped along with their subtree.
func (r *Reducer) Reduce(in Input) (*Result, error) {
	if in.Tree == nil {
		return nil, schema.NewError(schema.ErrCodeReducer, "courseware tree is required")
	}
	if in.Summary == nil {
		return nil, schema.NewError(schema.ErrCodeReducer, "export summary is required")
	}

	raw, ok := in.Snippets[in.Tree.ElementID]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeReducer, ErrMissingRoot).WithElement(in.Tree.ElementID)
	}
	root, err := r.decode(in.Tree, raw)
	if err != nil {
		return nil, err
	}

	res := &Result{Root: root}
	merged, err := r.reduceNode(in.Tree, root, in.Snippets, res)
	if err != nil {
		return nil, err
	}

	meta, err := r.metadata(in, 1+merged)
	if err != nil {
		return nil, err
	}
	root.envelope().ExportMetadata = meta
	res.Metadata = meta
	return res, nil
}

// reduceNode merges the subtree under node into s and returns how many
// descendants were merged.
func (r *Reducer) reduceNode(node *courseware.Node, s Snippet, snippets map[string]string, res *Result) (int, error) {
	merged := 0
	for _, child := range node.Children {
		raw, ok := snippets[child.ElementID]
		if !ok {
			continue
		}
		cs, err := r.decode(child, raw)
		if err != nil {
			return 0, err
		}
		n, err := r.reduceNode(child, cs, snippets, res)
		if err != nil {
			return 0, err
		}
		matched, err := s.Reduce(cs)
		if err != nil {
			return 0, err
		}
		if !matched {
			res.Unmatched = append(res.Unmatched, Unmatched{ParentID: s.ID(), ChildID: cs.ID()})
		}
		merged += 1 + n
	}
	return merged, nil
}

func (r *Reducer) decode(node *courseware.Node, raw string) (Snippet, error) {
	if err := r.validator.Validate(node.ElementID, raw); err != nil {
		return nil, err
	}
	return Decode(node.ElementType, node.ElementID, raw)
}

func (r *Reducer) metadata(in Input, count int) (*ExportMetadata, error) {
	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("mint completion id: %w", err)
	}
	sec, nsec := id.Time().UnixTime()

	ancestry := in.Ancestry
	if ancestry == nil {
		ancestry = []schema.ElementRef{}
	}
	return &ExportMetadata{
		ExportID:              in.Summary.ID,
		ExportType:            in.Summary.ExportType,
		StartedAt:             in.Summary.StartedAt.UTC(),
		CompletedAt:           time.Unix(sec, nsec).UTC(),
		CompletedTimeID:       id.String(),
		ElementsExportedCount: count,
		Ancestry:              ancestry,
		Metadata:              passthrough(in.Summary.Metadata),
	}, nil
}

// passthrough embeds JSON metadata verbatim and quotes anything else.
func passthrough(m string) json.RawMessage {
	if m == "" {
		return nil
	}
	if json.Valid([]byte(m)) {
		return json.RawMessage(m)
	}
	b, _ := json.Marshal(m)
	return b
}
