// Package sqlite implements the roster store on modernc.org/sqlite. Each
// collection maps to a table holding its key columns plus the record body as
// JSON; the enrollments secondary index is a real SQL index.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

type Repo struct{ db *sql.DB }

func NewRepo(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "open sqlite database")
	}
	// SQLite allows one writer at a time; concurrent writers on separate pool
	// connections surface as SQLITE_BUSY. A single pooled connection
	// serializes access instead.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.KindStore, err, "init sqlite schema")
	}
	return &Repo{db: db}, nil
}

func (s *Repo) Disconnect() { _ = s.db.Close() }

func (s *Repo) Health() error {
	if err := s.db.Ping(); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "sqlite ping")
	}
	return nil
}

func initSchema(db *sql.DB) error {
	for _, coll := range rosterstore.Collections {
		cols := make([]string, 0, len(coll.KeyFields)+1)
		for _, f := range coll.KeyFields {
			cols = append(cols, quote(f)+" TEXT NOT NULL")
		}
		cols = append(cols, "record TEXT NOT NULL")
		ddl := "CREATE TABLE IF NOT EXISTS " + quote(coll.Name) + " (" +
			strings.Join(cols, ", ") +
			", PRIMARY KEY (" + quotedList(coll.KeyFields) + "))"
		if _, err := db.Exec(ddl); err != nil {
			return err
		}
		for _, idx := range coll.Indexes {
			ddl := "CREATE INDEX IF NOT EXISTS " + quote(idx.Name) +
				" ON " + quote(coll.Name) + " (" + quote(idx.KeyField) + ")"
			if _, err := db.Exec(ddl); err != nil {
				return err
			}
		}
	}
	return nil
}

func quote(ident string) string { return `"` + ident + `"` }

func quotedList(fields []string) string {
	qs := make([]string, len(fields))
	for i, f := range fields {
		qs[i] = quote(f)
	}
	return strings.Join(qs, ", ")
}

func keyWhere(coll rosterstore.Collection, key rosterstore.Key) (string, []any) {
	conds := make([]string, len(coll.KeyFields))
	args := make([]any, len(coll.KeyFields))
	for i, f := range coll.KeyFields {
		conds[i] = quote(f) + " = ?"
		args[i] = key[f]
	}
	return strings.Join(conds, " AND "), args
}

func decodeRecord(body string) (rosterstore.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var rec rosterstore.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Repo) GetItem(ctx context.Context, coll rosterstore.Collection, key rosterstore.Key) (rosterstore.Record, error) {
	where, args := keyWhere(coll, key)
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM "+quote(coll.Name)+" WHERE "+where, args...).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get %s", coll.Name)
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "decode stored record in %s", coll.Name)
	}
	return rec, nil
}

func (s *Repo) PutItem(ctx context.Context, coll rosterstore.Collection, rec rosterstore.Record) error {
	key, err := coll.KeyOf(rec)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "encode record for %s", coll.Name)
	}
	cols := append([]string{}, coll.KeyFields...)
	args := make([]any, 0, len(cols)+1)
	for _, f := range cols {
		args = append(args, key[f])
	}
	args = append(args, string(body))
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+quote(coll.Name)+" ("+quotedList(cols)+", record) VALUES ("+placeholders+")",
		args...)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "put %s", coll.Name)
	}
	return nil
}

func (s *Repo) DeleteItem(ctx context.Context, coll rosterstore.Collection, key rosterstore.Key) error {
	where, args := keyWhere(coll, key)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+quote(coll.Name)+" WHERE "+where, args...); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "delete %s", coll.Name)
	}
	return nil
}

func (s *Repo) Query(ctx context.Context, coll rosterstore.Collection, indexName string, cond rosterstore.KeyCondition) ([]rosterstore.Record, error) {
	if indexName == "" {
		if cond.Field != coll.KeyFields[0] {
			return nil, apperr.Store("query on %s: condition field %q is not the leading key", coll.Name, cond.Field)
		}
	} else {
		idx := coll.IndexByName(indexName)
		if idx == nil {
			return nil, apperr.Store("collection %s has no index %q", coll.Name, indexName)
		}
		if cond.Field != idx.KeyField {
			return nil, apperr.Store("query on index %s: condition field %q does not match index key %q", indexName, cond.Field, idx.KeyField)
		}
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM "+quote(coll.Name)+" WHERE "+quote(cond.Field)+" = ?", cond.Equals)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "query %s", coll.Name)
	}
	defer rows.Close()
	var out []rosterstore.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "query %s", coll.Name)
		}
		rec, err := decodeRecord(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "decode stored record in %s", coll.Name)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "query %s", coll.Name)
	}
	return out, nil
}

func (s *Repo) ScanKeys(ctx context.Context, coll rosterstore.Collection) ([]rosterstore.Key, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+quotedList(coll.KeyFields)+" FROM "+quote(coll.Name))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan keys %s", coll.Name)
	}
	defer rows.Close()
	var out []rosterstore.Key
	for rows.Next() {
		vals := make([]string, len(coll.KeyFields))
		ptrs := make([]any, len(coll.KeyFields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "scan keys %s", coll.Name)
		}
		key := make(rosterstore.Key, len(coll.KeyFields))
		for i, f := range coll.KeyFields {
			key[f] = vals[i]
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan keys %s", coll.Name)
	}
	return out, nil
}

func (s *Repo) Scan(ctx context.Context, coll rosterstore.Collection) ([]rosterstore.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT record FROM "+quote(coll.Name))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan %s", coll.Name)
	}
	defer rows.Close()
	var out []rosterstore.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "scan %s", coll.Name)
		}
		rec, err := decodeRecord(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "decode stored record in %s", coll.Name)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "scan %s", coll.Name)
	}
	return out, nil
}
