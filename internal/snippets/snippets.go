// Package snippets persists the raw per-element render output of an export
// through one of three interchangeable backends.
package snippets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/ambrosia/internal/blob"
	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/pkg/schema"
)

// Mode selects the snippet storage backend.
type Mode string

const (
	ModeDurable Mode = "durable"
	ModeCache   Mode = "cache"
	ModeBlob    Mode = "blob"
)

// DefaultCacheTTL is how long an unconsumed cached snippet survives.
const DefaultCacheTTL = 30 * time.Minute

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDurable, ModeCache, ModeBlob:
		return m, nil
	case "":
		return ModeDurable, nil
	default:
		return "", schema.InvalidArgument("unknown snippet store %q", s)
	}
}

// Strategy is the contract the orchestrator uses regardless of backend.
type Strategy interface {
	Mode() Mode
	// Put records a snippet. Durable and cache backends require content.
	Put(ctx context.Context, sn *schema.ExportAmbrosiaSnippet) error
	// ListByExport returns every snippet of an export, ordered by element id.
	ListByExport(ctx context.Context, exportID string) ([]*schema.ExportAmbrosiaSnippet, error)
	// Discard drops snippets once the export has been reduced.
	Discard(ctx context.Context, exportID string) error
}

// Deps carries the collaborators a backend may need.
type Deps struct {
	Store    store.Store
	Blob     blob.Storage
	Bucket   string
	CacheTTL time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

// New builds the strategy for mode.
func New(mode Mode, deps Deps) (Strategy, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	switch mode {
	case ModeDurable:
		if deps.Store == nil {
			return nil, fmt.Errorf("durable snippet store requires a store")
		}
		return &durableStrategy{store: deps.Store}, nil
	case ModeCache:
		if deps.Store == nil {
			return nil, fmt.Errorf("cache snippet store requires a store")
		}
		ttl := deps.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		return &cacheStrategy{store: deps.Store, ttl: ttl, now: deps.Now}, nil
	case ModeBlob:
		if deps.Blob == nil || deps.Bucket == "" {
			return nil, fmt.Errorf("blob snippet store requires storage and a bucket")
		}
		return &blobStrategy{blob: deps.Blob, bucket: deps.Bucket, logger: deps.Logger}, nil
	default:
		return nil, schema.InvalidArgument("unknown snippet store %q", mode)
	}
}

func requireContent(sn *schema.ExportAmbrosiaSnippet) error {
	if sn == nil {
		return schema.InvalidArgument("snippet record is required")
	}
	if sn.ExportID == "" || sn.ElementID == "" {
		return schema.InvalidArgument("export id and element id are required")
	}
	if sn.Snippet == "" {
		return schema.InvalidArgument("snippet content is required").WithElement(sn.ElementID)
	}
	return nil
}

type durableStrategy struct {
	store store.Store
}

func (d *durableStrategy) Mode() Mode { return ModeDurable }

func (d *durableStrategy) Put(ctx context.Context, sn *schema.ExportAmbrosiaSnippet) error {
	if err := requireContent(sn); err != nil {
		return err
	}
	return d.store.PutSnippet(ctx, sn)
}

func (d *durableStrategy) ListByExport(ctx context.Context, exportID string) ([]*schema.ExportAmbrosiaSnippet, error) {
	return d.store.ListSnippets(ctx, exportID)
}

func (d *durableStrategy) Discard(ctx context.Context, exportID string) error {
	return d.store.DeleteSnippets(ctx, exportID)
}

type cacheStrategy struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func (c *cacheStrategy) Mode() Mode { return ModeCache }

func (c *cacheStrategy) Put(ctx context.Context, sn *schema.ExportAmbrosiaSnippet) error {
	if err := requireContent(sn); err != nil {
		return err
	}
	return c.store.PutCachedSnippet(ctx, sn, c.now().Add(c.ttl))
}

func (c *cacheStrategy) ListByExport(ctx context.Context, exportID string) ([]*schema.ExportAmbrosiaSnippet, error) {
	return c.store.ListCachedSnippets(ctx, exportID, c.now())
}

func (c *cacheStrategy) Discard(ctx context.Context, exportID string) error {
	return c.store.DeleteCachedSnippets(ctx, exportID)
}

// blobStrategy reads snippets the renderer wrote to <bucket>/<exportId>/<elementId>.json.
type blobStrategy struct {
	blob   blob.Storage
	bucket string
	logger *slog.Logger
}

// SnippetKey is the object key of an element snippet under the blob backend.
func SnippetKey(exportID, elementID string) string {
	return exportID + "/" + elementID + ".json"
}

func (b *blobStrategy) Mode() Mode { return ModeBlob }

// Put only uploads when content is present; otherwise the renderer already wrote it.
func (b *blobStrategy) Put(ctx context.Context, sn *schema.ExportAmbrosiaSnippet) error {
	if sn == nil || sn.ExportID == "" || sn.ElementID == "" {
		return schema.InvalidArgument("export id and element id are required")
	}
	if sn.Snippet == "" {
		b.logger.DebugContext(ctx, "snippet linkage recorded",
			slog.String("export_id", sn.ExportID),
			slog.String("element_id", sn.ElementID),
			slog.String("key", SnippetKey(sn.ExportID, sn.ElementID)),
		)
		return nil
	}
	_, err := b.blob.Upload(ctx, b.bucket, SnippetKey(sn.ExportID, sn.ElementID), strings.NewReader(sn.Snippet))
	return err
}

func (b *blobStrategy) ListByExport(ctx context.Context, exportID string) ([]*schema.ExportAmbrosiaSnippet, error) {
	prefix := exportID + "/"
	keys, err := b.blob.ListKeys(ctx, b.bucket, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.ExportAmbrosiaSnippet, 0, len(keys))
	for _, key := range keys {
		elementID := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
		if elementID == "" || strings.Contains(elementID, "/") {
			continue
		}
		data, err := b.blob.Read(ctx, b.bucket, key)
		if err != nil {
			return nil, fmt.Errorf("read snippet %s: %w", key, err)
		}
		out = append(out, &schema.ExportAmbrosiaSnippet{
			ExportID:  exportID,
			ElementID: elementID,
			Snippet:   string(data),
		})
	}
	return out, nil
}

// Discard keeps blob snippets; bucket lifecycle rules own their expiry.
func (b *blobStrategy) Discard(context.Context, string) error { return nil }

// ByElementID indexes snippets for the reducer.
func ByElementID(list []*schema.ExportAmbrosiaSnippet) map[string]string {
	m := make(map[string]string, len(list))
	for _, sn := range list {
		m[sn.ElementID] = sn.Snippet
	}
	return m
}
