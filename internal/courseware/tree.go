package courseware

import (
	"context"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Node is one element of a courseware tree. Children are ordered as authored.
type Node struct {
	ElementID   string             `json:"elementId"`
	ElementType schema.ElementType `json:"type"`
	ParentID    string             `json:"parentId,omitempty"`
	Children    []*Node            `json:"children,omitempty"`
}

// TreeProvider returns the authoritative element tree below rootID.
type TreeProvider interface {
	GetStructure(ctx context.Context, rootID string, rootType schema.ElementType, configFields []string) (*Node, error)
}

// AncestryProvider returns the ordered ancestors of an element, nearest parent first.
type AncestryProvider interface {
	FindAncestry(ctx context.Context, elementID string, elementType schema.ElementType) ([]schema.ElementRef, error)
}

// Walk visits n and all of its descendants depth-first, parents before children.
// depth is 0 for n. Returning false from fn stops descent into that node's children.
func Walk(n *Node, fn func(node *Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil {
		return
	}
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		walk(c, depth+1, fn)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n *Node) int {
	total := 0
	Walk(n, func(*Node, int) bool {
		total++
		return true
	})
	return total
}

// Find returns the node with the given id in the tree rooted at n, or nil.
func Find(n *Node, elementID string) *Node {
	var found *Node
	Walk(n, func(node *Node, _ int) bool {
		if found != nil {
			return false
		}
		if node.ElementID == elementID {
			found = node
			return false
		}
		return true
	})
	return found
}

// Clone returns a deep copy of the tree rooted at n.
func Clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := &Node{ElementID: n.ElementID, ElementType: n.ElementType, ParentID: n.ParentID}
	if len(n.Children) > 0 {
		cp.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			cp.Children = append(cp.Children, Clone(c))
		}
	}
	return cp
}
