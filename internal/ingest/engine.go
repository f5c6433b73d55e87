// Package ingest holds the sync engine: it pulls complete collections from
// the rostering source and replaces the store's contents one collection at a
// time.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rosterhub/rostersync/internal/metrics"
	"github.com/rosterhub/rostersync/internal/oneroster"
	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/common/logger"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
	"github.com/rosterhub/rostersync/pkg/repositories/secrets"
)

const (
	defaultBatchSize   = 25
	defaultConcurrency = 4
)

// Engine drives full-replace sync passes. The caller (an external scheduler)
// must guarantee at most one concurrent sync trigger; concurrent passes over
// the same collection are not coordinated here.
type Engine struct {
	Store   rosterstore.Repository
	Secrets secrets.Provider

	// AppNameOrID selects the upstream application by name or OneRoster
	// application id.
	AppNameOrID string
	// PageSize for upstream pagination. Defaults to oneroster.DefaultPageSize.
	PageSize int
	// BatchSize for store deletes/writes. Defaults to 25.
	BatchSize int
	// Concurrency bounds parallel batches within a phase. Defaults to 4.
	Concurrency int
}

// SyncResult reports one collection's pass.
type SyncResult struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// CollectionStatus is the per-collection entry of a run report. Error is
// empty on success; a failed collection keeps whatever state the pass reached
// and does not roll back collections already completed.
type CollectionStatus struct {
	Collection string `json:"collection"`
	Written    int    `json:"written"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// RunReport describes a whole ingestion run.
type RunReport struct {
	RunID       string             `json:"runId"`
	Collections []CollectionStatus `json:"collections"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
}

func (e *Engine) pageSize() int {
	if e.PageSize > 0 {
		return e.PageSize
	}
	return oneroster.DefaultPageSize
}

func (e *Engine) batchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return defaultBatchSize
}

func (e *Engine) concurrency() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return defaultConcurrency
}

// SyncCollection transforms every raw record first, then performs the
// clear-then-write replace: scan existing keys, delete them in batches, write
// the new records in batches. The store offers only per-item operations, so
// the swap is not one transaction; computing the full new collection up front
// keeps the partial-state window to the delete/write phases themselves.
func (e *Engine) SyncCollection(ctx context.Context, raw []rosterstore.Record, transform TransformFunc, coll rosterstore.Collection) (SyncResult, error) {
	var res SyncResult
	newRecs := make([]rosterstore.Record, 0, len(raw))
	for _, r := range raw {
		rec, err := transform(r)
		if err != nil {
			if apperr.IsKind(err, apperr.KindValidation) {
				res.Skipped++
				logger.Debug("sync %s: %v", coll.Name, err)
				continue
			}
			return res, err
		}
		newRecs = append(newRecs, rec)
	}

	existing, err := e.Store.ScanKeys(ctx, coll)
	if err != nil {
		return res, err
	}
	if err := e.deletePhase(ctx, coll, existing); err != nil {
		return res, err
	}
	if err := e.writePhase(ctx, coll, newRecs); err != nil {
		return res, err
	}
	res.Written = len(newRecs)

	metrics.SyncWritten.WithLabelValues(coll.Name).Add(float64(res.Written))
	metrics.SyncSkipped.WithLabelValues(coll.Name).Add(float64(res.Skipped))
	logger.Info("synced %s: wrote %d, skipped %d, cleared %d", coll.Name, res.Written, res.Skipped, len(existing))
	return res, nil
}

func (e *Engine) deletePhase(ctx context.Context, coll rosterstore.Collection, keys []rosterstore.Key) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for _, chunk := range chunkKeys(keys, e.batchSize()) {
		chunk := chunk
		g.Go(func() error {
			return rosterstore.BatchWrite(gctx, e.Store, coll, chunk, nil)
		})
	}
	return g.Wait()
}

func (e *Engine) writePhase(ctx context.Context, coll rosterstore.Collection, recs []rosterstore.Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for _, chunk := range chunkRecords(recs, e.batchSize()) {
		chunk := chunk
		g.Go(func() error {
			return rosterstore.BatchWrite(gctx, e.Store, coll, nil, chunk)
		})
	}
	return g.Wait()
}

func chunkKeys(keys []rosterstore.Key, size int) [][]rosterstore.Key {
	var out [][]rosterstore.Key
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

func chunkRecords(recs []rosterstore.Record, size int) [][]rosterstore.Record {
	var out [][]rosterstore.Record
	for len(recs) > size {
		out = append(out, recs[:size])
		recs = recs[size:]
	}
	if len(recs) > 0 {
		out = append(out, recs)
	}
	return out
}

// Run executes a full ingestion pass: resolve credentials, select the
// configured application, then sync users, enrollments and classes
// sequentially in that order. A failed collection is recorded in the report
// and does not abort the collections after it; completed collections are
// never rolled back. The returned error is non-nil when any collection
// failed, so schedulers can decide whether to retry.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}

	creds, err := e.Secrets.GetSecret(ctx, secrets.RosterAPICredentials)
	if err != nil {
		return report, err
	}
	baseURL := creds[secrets.KeyBaseURL]
	adminKey := creds[secrets.KeyAdminAPIKey]
	if baseURL == "" || adminKey == "" {
		return report, apperr.Upstream("roster API credentials incomplete")
	}

	admin := oneroster.NewClient(baseURL, adminKey)
	apps, err := admin.Applications(ctx)
	if err != nil {
		return report, err
	}
	app, err := oneroster.SelectApplication(apps, e.AppNameOrID)
	if err != nil {
		return report, err
	}
	if app.OneRosterAppID == "" || app.TenantID == "" || app.Bearer == "" {
		return report, apperr.Upstream("application %q missing oneroster id, tenant id or bearer token", e.AppNameOrID)
	}

	client := oneroster.NewClient(baseURL, app.Bearer)
	basePath := app.BasePath()
	logger.Info("ingestion run %s: application %q, tenant %s", report.RunID, e.AppNameOrID, app.TenantID)

	passes := []struct {
		coll      rosterstore.Collection
		endpoint  string
		key       string
		transform TransformFunc
	}{
		{rosterstore.Users, basePath + "/users", "users", UserTransform(app.TenantID)},
		{rosterstore.Enrollments, basePath + "/enrollments", "enrollments", EnrollmentTransform(app.TenantID)},
		{rosterstore.Classes, basePath + "/classes", "classes", ClassTransform()},
	}

	var failed []string
	for _, p := range passes {
		status := CollectionStatus{Collection: p.coll.Name}
		raw, err := client.FetchAll(ctx, p.endpoint, p.key, e.pageSize())
		if err == nil {
			var res SyncResult
			res, err = e.SyncCollection(ctx, raw, p.transform, p.coll)
			status.Written = res.Written
			status.Skipped = res.Skipped
		}
		if err != nil {
			status.Error = err.Error()
			failed = append(failed, p.coll.Name)
			metrics.SyncFailures.WithLabelValues(p.coll.Name).Inc()
			logger.Error("sync %s failed: %v", p.coll.Name, err)
		}
		report.Collections = append(report.Collections, status)
	}
	report.FinishedAt = time.Now().UTC()

	if len(failed) > 0 {
		return report, apperr.Wrap(apperr.KindUpstream, errors.New("collections: "+strings.Join(failed, ", ")), "ingestion completed with failures")
	}
	return report, nil
}
