package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/internal/courseware"
	"github.com/rendis/ambrosia/pkg/schema"
)

func ids(nodes []*courseware.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ElementID)
	}
	return out
}

func TestRenderFilter_NilAdmitsEverything(t *testing.T) {
	f, err := NewRenderFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)

	nodes, err := f.Select(sampleTree())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "P", "I"}, ids(nodes))
}

func TestRenderFilter_PrunesSubtrees(t *testing.T) {
	f, err := NewRenderFilter(`type != "PATHWAY"`)
	require.NoError(t, err)
	assert.Equal(t, `type != "PATHWAY"`, f.Source())

	nodes, err := f.Select(sampleTree())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(nodes))
}

func TestRenderFilter_RootAlwaysRendered(t *testing.T) {
	f, err := NewRenderFilter(`false`)
	require.NoError(t, err)

	nodes, err := f.Select(sampleTree())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(nodes))
}

func TestRenderFilter_Variables(t *testing.T) {
	f, err := NewRenderFilter(`depth < 2 && parentId != "P" && id != "C"`)
	require.NoError(t, err)

	nodes, err := f.Select(sampleTree())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "P"}, ids(nodes))
}

func TestRenderFilter_CompileErrors(t *testing.T) {
	for _, src := range []string{`depth +`, `"not a bool"`, `unknownVar == 1`} {
		_, err := NewRenderFilter(src)
		require.Error(t, err, src)
		assert.True(t, schema.IsCode(err, schema.ErrCodeExpression), src)
	}
}
