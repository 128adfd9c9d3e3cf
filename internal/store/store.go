// Package store defines the data-store abstraction and a store backed by a
// directory of NetCDF files.
package store

import (
	"context"
	"slices"
	"strings"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/schema"
)

// DataStore gives access to a catalog of datasets.
type DataStore interface {
	// ID returns the store name, e.g. "esa-cci".
	ID() string
	// ListDataIDs returns the identifiers of all datasets.
	ListDataIDs(ctx context.Context) ([]string, error)
	// SearchData returns the datasets matching f.
	SearchData(ctx context.Context, f Filter) ([]DataRef, error)
	// DescribeData returns the metadata of one dataset.
	DescribeData(ctx context.Context, dataID string) (*DatasetDescriptor, error)
	// GetOpenDataParamsSchema returns the schema that OpenData validates
	// parameters against.
	GetOpenDataParamsSchema(ctx context.Context, dataID string) (*schema.Schema, error)
	// OpenData validates params and loads the selected subset.
	OpenData(ctx context.Context, dataID string, params schema.Params) (*cube.Dataset, error)
}

// DataRef pairs a dataset identifier with the store that holds it.
type DataRef struct {
	DataID  string `json:"data_id"`
	StoreID string `json:"store_id"`
}

// Filter restricts catalog queries. Empty fields match everything.
type Filter struct {
	// Variable matches data variable names, ignoring case.
	Variable string `json:"variable,omitempty"`
	// ECV matches the "ecv" dataset attribute, ignoring case.
	ECV string `json:"ecv,omitempty"`
}

// Match reports whether the descriptor satisfies f.
func (f Filter) Match(d *DatasetDescriptor) bool {
	if f.Variable != "" && !slices.ContainsFunc(d.VarNames(), func(n string) bool {
		return strings.EqualFold(n, f.Variable)
	}) {
		return false
	}
	if f.ECV != "" {
		ecv, _ := d.Attrs["ecv"].(string)
		if !strings.EqualFold(ecv, f.ECV) {
			return false
		}
	}
	return true
}
