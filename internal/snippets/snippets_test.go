package snippets

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ambrosia/internal/blob"
	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/pkg/schema"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "snippets.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snippet(exportID, elementID, content string) *schema.ExportAmbrosiaSnippet {
	return &schema.ExportAmbrosiaSnippet{
		ExportID:    exportID,
		ElementID:   elementID,
		ElementType: schema.ElementTypeComponent,
		Snippet:     content,
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Cache")
	require.NoError(t, err)
	assert.Equal(t, ModeCache, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDurable, m)

	_, err = ParseMode("redis")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidArgument))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(ModeDurable, Deps{})
	assert.Error(t, err)
	_, err = New(ModeBlob, Deps{Blob: blob.NewFSStorage(afero.NewMemMapFs())})
	assert.Error(t, err)
	_, err = New(Mode("nope"), Deps{})
	assert.Error(t, err)
}

func TestStrategies_RequireContent(t *testing.T) {
	s := newTestStore(t)
	for _, mode := range []Mode{ModeDurable, ModeCache} {
		t.Run(string(mode), func(t *testing.T) {
			strat, err := New(mode, Deps{Store: s})
			require.NoError(t, err)
			assert.Equal(t, mode, strat.Mode())

			err = strat.Put(context.Background(), snippet("exp-1", "c-1", ""))
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidArgument))

			err = strat.Put(context.Background(), nil)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidArgument))
		})
	}
}

func TestDurable_PutListDiscard(t *testing.T) {
	strat, err := New(ModeDurable, Deps{Store: newTestStore(t)})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, strat.Put(ctx, snippet("exp-1", "b", `{"$id":"b"}`)))
	require.NoError(t, strat.Put(ctx, snippet("exp-1", "a", `{"$id":"a"}`)))
	require.NoError(t, strat.Put(ctx, snippet("exp-2", "z", `{"$id":"z"}`)))

	list, err := strat.ListByExport(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ElementID)
	assert.Equal(t, map[string]string{"a": `{"$id":"a"}`, "b": `{"$id":"b"}`}, ByElementID(list))

	require.NoError(t, strat.Discard(ctx, "exp-1"))
	list, err = strat.ListByExport(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCache_EntriesExpire(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	strat, err := New(ModeCache, Deps{Store: newTestStore(t), Now: clock})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, strat.Put(ctx, snippet("exp-1", "a", "{}")))
	list, err := strat.ListByExport(ctx, "exp-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	now = now.Add(DefaultCacheTTL + time.Second)
	list, err = strat.ListByExport(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, list, "unconsumed snippets expire after the cache TTL")
}

func TestBlob_AcceptsEmptyAndListsByPrefix(t *testing.T) {
	storage := blob.NewFSStorage(afero.NewMemMapFs())
	strat, err := New(ModeBlob, Deps{Blob: storage, Bucket: "snippets"})
	require.NoError(t, err)
	ctx := context.Background()

	// Renderer-written object; Put only records linkage.
	_, err = storage.Upload(ctx, "snippets", SnippetKey("exp-1", "act-1"), strings.NewReader(`{"$id":"act-1"}`))
	require.NoError(t, err)
	require.NoError(t, strat.Put(ctx, snippet("exp-1", "act-1", "")))

	require.NoError(t, strat.Put(ctx, snippet("exp-1", "cmp-1", `{"$id":"cmp-1"}`)))
	require.NoError(t, strat.Put(ctx, snippet("exp-10", "other", `{}`)))

	list, err := strat.ListByExport(ctx, "exp-1")
	require.NoError(t, err)
	got := ByElementID(list)
	assert.Equal(t, map[string]string{
		"act-1": `{"$id":"act-1"}`,
		"cmp-1": `{"$id":"cmp-1"}`,
	}, got)

	require.NoError(t, strat.Discard(ctx, "exp-1"))
}
