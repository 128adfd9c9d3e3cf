package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/schema"
)

const ncExt = ".nc"

// Local is a DataStore over a directory of NetCDF files. The data ID of a
// file is its name without the .nc extension.
type Local struct {
	id     string
	root   string
	logger *slog.Logger
	cache  *Cache
}

// LocalOption configures a Local store.
type LocalOption func(*Local)

// WithID overrides the store name reported in DataRefs.
func WithID(id string) LocalOption {
	return func(l *Local) { l.id = id }
}

// WithCache sets the descriptor cache.
func WithCache(c *Cache) LocalOption {
	return func(l *Local) { l.cache = c }
}

// NewLocal creates a store over the directory root.
func NewLocal(logger *slog.Logger, root string, opts ...LocalOption) (*Local, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", root)
	}
	l := &Local{id: "local", root: root, logger: logger, cache: NewCache(0)}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// ID implements DataStore.
func (l *Local) ID() string { return l.id }

// ListDataIDs implements DataStore.
func (l *Local) ListDataIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ncExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ncExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// SearchData implements DataStore. Files that cannot be described are
// skipped with a warning.
func (l *Local) SearchData(ctx context.Context, f Filter) ([]DataRef, error) {
	ids, err := l.ListDataIDs(ctx)
	if err != nil {
		return nil, err
	}
	var refs []DataRef
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := l.DescribeData(ctx, id)
		if err != nil {
			l.logger.Warn("Skipping dataset", "dataID", id, "err", err)
			continue
		}
		if f.Match(d) {
			refs = append(refs, DataRef{DataID: id, StoreID: l.id})
		}
	}
	return refs, nil
}

// DescribeData implements DataStore.
func (l *Local) DescribeData(ctx context.Context, dataID string) (*DatasetDescriptor, error) {
	if d, ok := l.cache.Get(dataID); ok {
		return d, nil
	}
	path, err := l.path(dataID)
	if err != nil {
		return nil, err
	}
	info, err := cube.Inspect(path)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", dataID, err)
	}
	d := Describe(dataID, info)
	l.cache.Add(d)
	return d, nil
}

// GetOpenDataParamsSchema implements DataStore.
func (l *Local) GetOpenDataParamsSchema(ctx context.Context, dataID string) (*schema.Schema, error) {
	d, err := l.DescribeData(ctx, dataID)
	if err != nil {
		return nil, err
	}
	return d.OpenParamsSchema, nil
}

// OpenData implements DataStore.
func (l *Local) OpenData(ctx context.Context, dataID string, params schema.Params) (*cube.Dataset, error) {
	d, err := l.DescribeData(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(d.OpenParamsSchema, params); err != nil {
		return nil, fmt.Errorf("open %s: %w", dataID, err)
	}
	op, err := schema.Decode(params)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataID, err)
	}
	path, err := l.path(dataID)
	if err != nil {
		return nil, err
	}
	ds, err := cube.Read(ctx, path, cube.ReadOptions{
		Vars:      op.VariableNames,
		TimeMin:   op.Start,
		TimeMax:   op.End,
		BBox:      op.BBox,
		Normalize: op.Normalize,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataID, err)
	}
	l.logger.Debug("Opened dataset", append([]any{"dataID", dataID}, ds.Summary()...)...)
	return ds, nil
}

func (l *Local) path(dataID string) (string, error) {
	if dataID == "" || strings.ContainsAny(dataID, `/\`) || dataID == "." || dataID == ".." {
		return "", fmt.Errorf("%w: %q", ErrNotFound, dataID)
	}
	path := filepath.Join(l.root, dataID+ncExt)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, dataID)
		}
		return "", err
	}
	return path, nil
}
