package courseware

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rendis/ambrosia/pkg/schema"
)

// FileProvider serves trees and ancestry from a courseware document kept in memory.
// The document is a single root node with nested children, typically loaded from JSON.
type FileProvider struct {
	mu      sync.RWMutex
	root    *Node
	parents map[string]*Node
}

// NewFileProvider indexes the given root node.
func NewFileProvider(root *Node) *FileProvider {
	p := &FileProvider{}
	p.Replace(root)
	return p
}

// LoadFileProvider reads a JSON courseware document from path.
func LoadFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read courseware file: %w", err)
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode courseware file: %w", err)
	}
	return NewFileProvider(&root), nil
}

// Replace swaps the served document.
func (p *FileProvider) Replace(root *Node) {
	parents := make(map[string]*Node)
	Walk(root, func(n *Node, _ int) bool {
		for _, c := range n.Children {
			if c.ParentID == "" {
				c.ParentID = n.ElementID
			}
			parents[c.ElementID] = n
		}
		return true
	})

	p.mu.Lock()
	p.root = root
	p.parents = parents
	p.mu.Unlock()
}

// GetStructure returns a copy of the subtree rooted at rootID.
// configFields is accepted for interface compatibility; nodes carry no config here.
func (p *FileProvider) GetStructure(_ context.Context, rootID string, rootType schema.ElementType, _ []string) (*Node, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := Find(p.root, rootID)
	if n == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "courseware element %q not found", rootID)
	}
	if rootType != "" && n.ElementType != rootType {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidArgument,
			"courseware element %q is %s, not %s", rootID, n.ElementType, rootType)
	}
	return Clone(n), nil
}

// FindAncestry walks parent links up to the document root.
func (p *FileProvider) FindAncestry(_ context.Context, elementID string, _ schema.ElementType) ([]schema.ElementRef, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if Find(p.root, elementID) == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "courseware element %q not found", elementID)
	}
	ancestry := []schema.ElementRef{}
	for parent := p.parents[elementID]; parent != nil; parent = p.parents[parent.ElementID] {
		ancestry = append(ancestry, schema.ElementRef{ElementID: parent.ElementID, ElementType: parent.ElementType})
	}
	return ancestry, nil
}

var (
	_ TreeProvider     = (*FileProvider)(nil)
	_ AncestryProvider = (*FileProvider)(nil)
)
