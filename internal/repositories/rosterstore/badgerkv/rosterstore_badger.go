// Package badgerkv implements the roster store on embedded BadgerDB.
//
// Key layout (segments joined with a NUL byte, which key values never
// contain):
//
//	r <coll> <pk1> [<pk2>...]          -> record JSON
//	i <coll> <index> <idxval> <pk...>  -> primary key JSON
//
// Secondary-index entries are maintained inside the same transaction as the
// record write or delete.
package badgerkv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

const sep = "\x00"

// Config holds the backend settings.
type Config struct {
	// Path is the database directory. Created if missing. Ignored in-memory.
	Path string
	// InMemory opens a non-persistent database, used by tests.
	InMemory bool
	// SyncWrites forces durable writes. Defaults off for local use.
	SyncWrites bool
}

type Repo struct {
	db *badger.DB
}

// NewRepo opens the database per cfg.
func NewRepo(cfg Config) (*Repo, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, apperr.Store("badger path not configured")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "create badger directory")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "open badger database")
	}
	return &Repo{db: db}, nil
}

// NewInMemory opens a throwaway in-memory store for tests.
func NewInMemory() (*Repo, error) {
	return NewRepo(Config{InMemory: true})
}

func (r *Repo) Disconnect() { _ = r.db.Close() }

func (r *Repo) Health() error {
	if r.db.IsClosed() {
		return apperr.Store("badger database closed")
	}
	return nil
}

func recordKey(coll rosterstore.Collection, key rosterstore.Key) []byte {
	parts := []string{"r", coll.Name}
	for _, f := range coll.KeyFields {
		parts = append(parts, key[f])
	}
	return join(parts)
}

func recordPrefix(coll rosterstore.Collection, leading ...string) []byte {
	parts := append([]string{"r", coll.Name}, leading...)
	b := join(parts)
	return append(b, sep...)
}

func indexKey(coll rosterstore.Collection, idx rosterstore.Index, idxVal string, key rosterstore.Key) []byte {
	parts := []string{"i", coll.Name, idx.Name, idxVal}
	for _, f := range coll.KeyFields {
		parts = append(parts, key[f])
	}
	return join(parts)
}

func indexPrefix(coll rosterstore.Collection, idx rosterstore.Index, idxVal string) []byte {
	b := join([]string{"i", coll.Name, idx.Name, idxVal})
	return append(b, sep...)
}

func join(parts []string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

func decodeRecord(val []byte) (rosterstore.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(val))
	dec.UseNumber()
	var rec rosterstore.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "decode stored record")
	}
	return rec, nil
}

func (r *Repo) GetItem(ctx context.Context, coll rosterstore.Collection, key rosterstore.Key) (rosterstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get %s", coll.Name)
	}
	var rec rosterstore.Record
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(coll, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decodeRecord(val)
			return err
		})
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get %s", coll.Name)
	}
	return rec, nil
}

func (r *Repo) PutItem(ctx context.Context, coll rosterstore.Collection, rec rosterstore.Record) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "put %s", coll.Name)
	}
	key, err := coll.KeyOf(rec)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "encode record for %s", coll.Name)
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "encode key for %s", coll.Name)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		// Drop index entries pointing at a previous version of this record.
		if len(coll.Indexes) > 0 {
			if old, err := readRecord(txn, coll, key); err != nil {
				return err
			} else if old != nil {
				for _, idx := range coll.Indexes {
					if v, ok := old[idx.KeyField].(string); ok && v != "" {
						if err := txn.Delete(indexKey(coll, idx, v, key)); err != nil {
							return err
						}
					}
				}
			}
		}
		if err := txn.Set(recordKey(coll, key), body); err != nil {
			return err
		}
		for _, idx := range coll.Indexes {
			if v, ok := rec[idx.KeyField].(string); ok && v != "" {
				if err := txn.Set(indexKey(coll, idx, v, key), keyJSON); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "put %s", coll.Name)
	}
	return nil
}

func readRecord(txn *badger.Txn, coll rosterstore.Collection, key rosterstore.Key) (rosterstore.Record, error) {
	item, err := txn.Get(recordKey(coll, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec rosterstore.Record
	err = item.Value(func(val []byte) error {
		var derr error
		rec, derr = decodeRecord(val)
		return derr
	})
	return rec, err
}

func (r *Repo) DeleteItem(ctx context.Context, coll rosterstore.Collection, key rosterstore.Key) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "delete %s", coll.Name)
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		old, err := readRecord(txn, coll, key)
		if err != nil {
			return err
		}
		if old == nil {
			return nil
		}
		for _, idx := range coll.Indexes {
			if v, ok := old[idx.KeyField].(string); ok && v != "" {
				if err := txn.Delete(indexKey(coll, idx, v, key)); err != nil {
					return err
				}
			}
		}
		return txn.Delete(recordKey(coll, key))
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "delete %s", coll.Name)
	}
	return nil
}

func (r *Repo) Query(ctx context.Context, coll rosterstore.Collection, indexName string, cond rosterstore.KeyCondition) ([]rosterstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "query %s", coll.Name)
	}
	if indexName == "" {
		if cond.Field != coll.KeyFields[0] {
			return nil, apperr.Store("query on %s: condition field %q is not the leading key", coll.Name, cond.Field)
		}
		return r.queryPrimary(coll, cond.Equals)
	}

	idx := coll.IndexByName(indexName)
	if idx == nil {
		return nil, apperr.Store("collection %s has no index %q", coll.Name, indexName)
	}
	if cond.Field != idx.KeyField {
		return nil, apperr.Store("query on index %s: condition field %q does not match index key %q", indexName, cond.Field, idx.KeyField)
	}
	return r.queryIndex(coll, *idx, cond.Equals)
}

func (r *Repo) queryPrimary(coll rosterstore.Collection, leading string) ([]rosterstore.Record, error) {
	if len(coll.KeyFields) == 1 {
		// Single-field key: equality is an exact record lookup.
		var out []rosterstore.Record
		err := r.db.View(func(txn *badger.Txn) error {
			rec, err := readRecord(txn, coll, rosterstore.Key{coll.KeyFields[0]: leading})
			if err != nil {
				return err
			}
			if rec != nil {
				out = append(out, rec)
			}
			return nil
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "query %s", coll.Name)
		}
		return out, nil
	}

	var out []rosterstore.Record
	prefix := recordPrefix(coll, leading)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec rosterstore.Record
			err := it.Item().Value(func(val []byte) error {
				var derr error
				rec, derr = decodeRecord(val)
				return derr
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "query %s", coll.Name)
	}
	return out, nil
}

func (r *Repo) queryIndex(coll rosterstore.Collection, idx rosterstore.Index, val string) ([]rosterstore.Record, error) {
	var keys []rosterstore.Key
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = indexPrefix(coll, idx, val)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var key rosterstore.Key
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &key)
			})
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "query index %s", idx.Name)
	}

	out := make([]rosterstore.Record, 0, len(keys))
	err = r.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			rec, err := readRecord(txn, coll, key)
			if err != nil {
				return err
			}
			if rec != nil {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "query index %s", idx.Name)
	}
	return out, nil
}

func (r *Repo) ScanKeys(ctx context.Context, coll rosterstore.Collection) ([]rosterstore.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan keys %s", coll.Name)
	}
	prefix := recordPrefix(coll)
	var out []rosterstore.Key
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), prefix)
			parts := bytes.Split(rest, []byte(sep))
			if len(parts) != len(coll.KeyFields) {
				continue
			}
			key := make(rosterstore.Key, len(coll.KeyFields))
			for i, f := range coll.KeyFields {
				key[f] = string(parts[i])
			}
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan keys %s", coll.Name)
	}
	return out, nil
}

func (r *Repo) Scan(ctx context.Context, coll rosterstore.Collection) ([]rosterstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan %s", coll.Name)
	}
	var out []rosterstore.Record
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(coll)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec rosterstore.Record
			err := it.Item().Value(func(val []byte) error {
				var derr error
				rec, derr = decodeRecord(val)
				return derr
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan %s", coll.Name)
	}
	return out, nil
}
