package export

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/ambrosia/internal/blob"
	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/pkg/schema"
)

// ArtifactKey is the blob key of the reduced document of an export.
func ArtifactKey(exportID string) string {
	return exportID + "/ambrosia.json"
}

// Inspector evaluates jq queries against the artifact of a completed export.
// Compiled queries are cached and shared across goroutines.
type Inspector struct {
	store  store.Store
	blob   blob.Storage
	bucket string

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewInspector creates an Inspector reading artifacts from bucket.
func NewInspector(s store.Store, b blob.Storage, bucket string) *Inspector {
	return &Inspector{store: s, blob: b, bucket: bucket, cache: make(map[string]*gojq.Code)}
}

// Inspect runs query over the artifact of exportID and returns every output.
// The export must be COMPLETED.
func (in *Inspector) Inspect(ctx context.Context, exportID, query string) ([]any, error) {
	if exportID == "" {
		return nil, schema.InvalidArgument("export id is required")
	}
	if query == "" {
		query = "."
	}
	code, err := in.compile(query)
	if err != nil {
		return nil, err
	}

	doc, err := in.Artifact(ctx, exportID)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, doc)
	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"jq evaluation failed for %q: %s", query, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": query, "export_id": exportID})
		}
		results = append(results, val)
	}
	return results, nil
}

// Artifact loads and decodes the reduced document of a completed export.
func (in *Inspector) Artifact(ctx context.Context, exportID string) (any, error) {
	summary, err := in.store.GetSummary(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if summary.Status != schema.ExportStatusCompleted {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"export %q has no artifact (status %s)", exportID, summary.Status)
	}
	raw, err := in.blob.Read(ctx, in.bucket, ArtifactKey(exportID))
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode artifact of %q", exportID).WithCause(err)
	}
	return doc, nil
}

func (in *Inspector) compile(query string) (*gojq.Code, error) {
	in.mu.RLock()
	if code, ok := in.cache[query]; ok {
		in.mu.RUnlock()
		return code, nil
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if code, ok := in.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "jq parse error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": query})
	}
	code, err := gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "jq compile error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": query})
	}
	in.cache[query] = code
	return code, nil
}
