// Package rosterstore defines the key-value store contract the roster system
// is built on. The store holds three denormalized collections (users,
// enrollments, classes) as schemaless records; backends are pluggable behind
// the Repository interface.
package rosterstore

import (
	"context"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
)

// Record is a schemaless store row. Numeric values are json.Number so that
// precision is preserved until the response-boundary adapter converts them.
type Record = map[string]any

// Key addresses one record: composite-key field name to value.
type Key map[string]string

// Index describes a secondary access path on a single record field.
type Index struct {
	Name     string
	KeyField string
}

// Collection describes one entity collection: its name, the primary key
// fields in declared order, and any secondary indexes.
type Collection struct {
	Name      string
	KeyFields []string
	Indexes   []Index
}

// ClassIndex is the secondary index on enrollments supporting "all
// enrollments for a class" without a full scan. This is the access path for
// teacher roster fan-out.
const ClassIndex = "classId-userId-index"

var (
	Users = Collection{
		Name:      "users",
		KeyFields: []string{"userId"},
	}
	Enrollments = Collection{
		Name:      "enrollments",
		KeyFields: []string{"userId", "classId"},
		Indexes:   []Index{{Name: ClassIndex, KeyField: "classId"}},
	}
	Classes = Collection{
		Name:      "classes",
		KeyFields: []string{"classId"},
	}
)

// Collections lists the entity collections in the order sync passes process
// them.
var Collections = []Collection{Users, Enrollments, Classes}

// IndexByName resolves a secondary index descriptor, or nil when the
// collection has no index of that name.
func (c Collection) IndexByName(name string) *Index {
	for i := range c.Indexes {
		if c.Indexes[i].Name == name {
			return &c.Indexes[i]
		}
	}
	return nil
}

// KeyOf extracts a record's primary key. Missing or non-string key fields
// yield a Validation error; a record without a full key cannot be stored.
func (c Collection) KeyOf(rec Record) (Key, error) {
	key := make(Key, len(c.KeyFields))
	for _, f := range c.KeyFields {
		v, ok := rec[f].(string)
		if !ok || v == "" {
			return nil, apperr.Validation("record in %s missing key field %q", c.Name, f)
		}
		key[f] = v
	}
	return key, nil
}

// KeyCondition is an equality condition on the leading primary-key field, or
// on an index key field when an index name is given to Query.
type KeyCondition struct {
	Field  string
	Equals string
}

// Repository is the capability set every backend provides. All operations are
// request/response with no hidden batching; failures other than a plain
// absent item surface as apperr.Store errors.
type Repository interface {
	// GetItem returns the record under key, or (nil, nil) when absent.
	GetItem(ctx context.Context, coll Collection, key Key) (Record, error)
	// Query returns all records matching cond. An empty indexName queries by
	// the leading primary-key field; otherwise the named secondary index is
	// used. Result order is backend-defined and callers must not rely on it.
	Query(ctx context.Context, coll Collection, indexName string, cond KeyCondition) ([]Record, error)
	// PutItem writes rec, overwriting any record under the same key.
	PutItem(ctx context.Context, coll Collection, rec Record) error
	// DeleteItem removes the record under key. Deleting an absent key is not
	// an error.
	DeleteItem(ctx context.Context, coll Collection, key Key) error
	// ScanKeys enumerates every primary key in the collection.
	ScanKeys(ctx context.Context, coll Collection) ([]Key, error)
	// Scan returns every record in the collection.
	Scan(ctx context.Context, coll Collection) ([]Record, error)
	Health() error
	Disconnect()
}

// BatchWrite applies deletes then puts through the per-item primitives, in
// the order given, stopping at the first failure. It is a convenience
// wrapper, not a new primitive: no reordering, no deduplication, no
// atomicity across items.
func BatchWrite(ctx context.Context, repo Repository, coll Collection, deletes []Key, puts []Record) error {
	for _, k := range deletes {
		if err := repo.DeleteItem(ctx, coll, k); err != nil {
			return err
		}
	}
	for _, rec := range puts {
		if err := repo.PutItem(ctx, coll, rec); err != nil {
			return err
		}
	}
	return nil
}
