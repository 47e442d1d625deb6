// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package task

import (
	"context"
	"fmt"

	"github.com/couchpenter/couchpenter/pkg/couchdb"
	"github.com/couchpenter/couchpenter/pkg/log"
	"github.com/couchpenter/couchpenter/pkg/setup"
)

// Resolver substitutes document specifications in a setup with concrete
// documents. Implemented by document.Resolver.
type Resolver interface {
	Resolve(*setup.Setup) error
}

// Orchestrator runs an ordered task sequence against a store. Tasks run
// strictly one after another; the first failure aborts the remaining
// sequence without rolling back earlier tasks.
type Orchestrator struct {
	store    Store
	resolver Resolver
}

func NewOrchestrator(store Store, resolver Resolver) *Orchestrator {
	return &Orchestrator{store: store, resolver: resolver}
}

// Run executes the tasks in order and returns the concatenated results,
// task order first, per-operation order within each task second. The
// setup is resolved lazily, once, right before the first document-bearing
// task; database-only sequences never touch the file system.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task, s *setup.Setup) ([]couchdb.Result, error) {
	var combined []couchdb.Result
	resolved := false
	for _, t := range tasks {
		if t.Kind == DatabasesWithDocuments && !resolved {
			if err := o.resolver.Resolve(s); err != nil {
				return nil, err
			}
			resolved = true
		}

		log.Debug("msg", "running task", "task", t.Name, "databases", s.Len())
		results, err := o.dispatch(ctx, t, s)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.Name, err)
		}
		combined = append(combined, results...)
	}
	return combined, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, t Task, s *setup.Setup) ([]couchdb.Result, error) {
	switch t {
	case CreateDatabases:
		return o.store.CreateDatabases(ctx, s.Databases())
	case CreateDocuments:
		return o.store.CreateDocuments(ctx, s)
	case SaveDocuments:
		return o.store.SaveDocuments(ctx, s)
	case RemoveDatabases:
		return o.store.RemoveDatabases(ctx, s.Databases())
	case RemoveDocuments:
		return o.store.RemoveDocuments(ctx, s)
	case CleanDatabases:
		return o.store.CleanDatabases(ctx, s.Databases())
	case WarmViews:
		return o.store.WarmViews(ctx, s)
	case LiveDeployView:
		return o.store.LiveDeployView(ctx, s)
	default:
		return nil, fmt.Errorf("unknown task %q", t.Name)
	}
}
