// Package query reconstructs identity-scoped views of the roster.
//
// The aggregation is an N+1 fan-out by design: O(enrollments) +
// O(classes) + O(teacher_classes x class_size) point lookups against the
// store. At roster scale (hundreds of students per class) this trades
// throughput for simplicity; the per-class lookups run concurrently to keep
// tail latency down.
package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/models"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

const defaultConcurrency = 8

// Engine answers identity-scoped roster queries against the store.
type Engine struct {
	Store rosterstore.Repository

	// IncludeMemberNames joins first/last names onto teacher roster entries.
	// A member whose profile is missing gets placeholder values instead of
	// failing the aggregation.
	IncludeMemberNames bool
	// Concurrency bounds the parallel fan-out lookups. Defaults to 8.
	Concurrency int
}

func (e *Engine) concurrency() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return defaultConcurrency
}

// GetUserView aggregates the view for userKey: profile, enrollments, the
// enrolled classes, and for teachers the full roster of every class. A
// missing user yields a NotFound error, which is a normal outcome for
// callers (the identity may exist upstream before a sync has run). Dangling
// enrollment references to deleted classes are dropped silently.
func (e *Engine) GetUserView(ctx context.Context, userKey string) (*models.UserView, error) {
	profile, err := e.Store.GetItem(ctx, rosterstore.Users, rosterstore.Key{"userId": userKey})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperr.NotFound("user not found in roster database")
	}

	enrollments, err := e.Store.Query(ctx, rosterstore.Enrollments, "",
		rosterstore.KeyCondition{Field: "userId", Equals: userKey})
	if err != nil {
		return nil, err
	}

	classes, err := e.classDetails(ctx, enrollments)
	if err != nil {
		return nil, err
	}

	if models.UserFromRecord(profile).Role == models.RoleTeacher {
		if err := e.attachRosters(ctx, classes); err != nil {
			return nil, err
		}
	}

	if enrollments == nil {
		enrollments = []map[string]any{}
	}
	return &models.UserView{
		UserProfile: profile,
		Enrollments: enrollments,
		Classes:     classes,
	}, nil
}

// classDetails fetches the class record behind each enrollment concurrently,
// then reassembles in enrollment order, dropping dangling references.
func (e *Engine) classDetails(ctx context.Context, enrollments []rosterstore.Record) ([]map[string]any, error) {
	slots := make([]rosterstore.Record, len(enrollments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, enr := range enrollments {
		classID, _ := enr["classId"].(string)
		if classID == "" {
			continue
		}
		i := i
		g.Go(func() error {
			rec, err := e.Store.GetItem(gctx, rosterstore.Classes, rosterstore.Key{"classId": classID})
			if err != nil {
				return err
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	classes := make([]map[string]any, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			classes = append(classes, rec)
		}
	}
	return classes, nil
}

// attachRosters sets a "roster" array on every class record: the class's
// enrollments from the secondary index, optionally joined with member names.
// Per-class queries run concurrently; class order is preserved because each
// goroutine writes only its own class record.
func (e *Engine) attachRosters(ctx context.Context, classes []map[string]any) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for _, class := range classes {
		classID, _ := class["classId"].(string)
		if classID == "" {
			continue
		}
		class := class
		g.Go(func() error {
			members, err := e.Store.Query(gctx, rosterstore.Enrollments, rosterstore.ClassIndex,
				rosterstore.KeyCondition{Field: "classId", Equals: classID})
			if err != nil {
				return err
			}
			if e.IncludeMemberNames {
				if err := e.joinMemberNames(gctx, members); err != nil {
					return err
				}
			}
			if members == nil {
				members = []rosterstore.Record{}
			}
			class["roster"] = members
			return nil
		})
	}
	return g.Wait()
}

// joinMemberNames attaches firstName/lastName from each member's user record.
// A missing profile yields placeholders rather than failing the whole view.
func (e *Engine) joinMemberNames(ctx context.Context, members []rosterstore.Record) error {
	for _, m := range members {
		userID, _ := m["userId"].(string)
		var user rosterstore.Record
		if userID != "" {
			var err error
			user, err = e.Store.GetItem(ctx, rosterstore.Users, rosterstore.Key{"userId": userID})
			if err != nil {
				return err
			}
		}
		if user != nil {
			m["firstName"] = user["firstName"]
			m["lastName"] = user["lastName"]
		} else {
			m["firstName"] = models.PlaceholderValue
			m["lastName"] = models.PlaceholderValue
		}
	}
	return nil
}

// Dump returns every record of all three collections, for the administrative
// full-dump endpoint.
func (e *Engine) Dump(ctx context.Context) (map[string][]rosterstore.Record, error) {
	out := make(map[string][]rosterstore.Record, len(rosterstore.Collections))
	for _, coll := range rosterstore.Collections {
		recs, err := e.Store.Scan(ctx, coll)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []rosterstore.Record{}
		}
		out[coll.Name] = recs
	}
	return out, nil
}
