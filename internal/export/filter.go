package export

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/ambrosia/internal/courseware"
	"github.com/rendis/ambrosia/pkg/schema"
)

// RenderFilter decides which tree nodes receive a render request.
// Expressions see id, type, parentId and depth, and must yield a bool.
// The export root is always rendered.
type RenderFilter struct {
	source  string
	program *vm.Program
}

func filterEnv(n *courseware.Node, depth int) map[string]any {
	env := map[string]any{"id": "", "type": "", "parentId": "", "depth": 0}
	if n != nil {
		env["id"] = n.ElementID
		env["type"] = string(n.ElementType)
		env["parentId"] = n.ParentID
		env["depth"] = depth
	}
	return env
}

// NewRenderFilter compiles source. An empty source returns a nil filter,
// which admits every node.
func NewRenderFilter(source string) (*RenderFilter, error) {
	if source == "" {
		return nil, nil
	}
	prg, err := expr.Compile(source, expr.Env(filterEnv(nil, 0)), expr.AsBool())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"compile render filter %q: %s", source, err.Error()).WithCause(err)
	}
	return &RenderFilter{source: source, program: prg}, nil
}

// Source returns the expression text.
func (f *RenderFilter) Source() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Allow reports whether n at depth should be rendered.
func (f *RenderFilter) Allow(n *courseware.Node, depth int) (bool, error) {
	if f == nil || depth == 0 {
		return true, nil
	}
	out, err := vm.Run(f.program, filterEnv(n, depth))
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"evaluate render filter on %s: %s", n.ElementID, err.Error()).
			WithElement(n.ElementID).
			WithCause(err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Select returns the nodes of the tree to render, parents before children.
// A rejected node prunes its whole subtree.
func (f *RenderFilter) Select(root *courseware.Node) ([]*courseware.Node, error) {
	var (
		nodes   []*courseware.Node
		evalErr error
	)
	courseware.Walk(root, func(n *courseware.Node, depth int) bool {
		if evalErr != nil {
			return false
		}
		ok, err := f.Allow(n, depth)
		if err != nil {
			evalErr = err
			return false
		}
		if ok {
			nodes = append(nodes, n)
		}
		return ok
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return nodes, nil
}
