// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

// Package task defines the remote operations and runs them in order.
package task

import (
	"context"

	"github.com/couchpenter/couchpenter/pkg/couchdb"
	"github.com/couchpenter/couchpenter/pkg/setup"
)

// Kind tags the input shape a task consumes. It is carried explicitly on
// the task rather than inferred from the task name.
type Kind int

const (
	// DatabasesOnly tasks receive the database names of the setup.
	DatabasesOnly Kind = iota
	// DatabasesWithDocuments tasks receive the resolved setup.
	DatabasesWithDocuments
)

// Task is one named remote operation. The set of tasks is closed.
type Task struct {
	Name string
	Kind Kind
}

var (
	CreateDatabases = Task{Name: "createDatabases", Kind: DatabasesOnly}
	CreateDocuments = Task{Name: "createDocuments", Kind: DatabasesWithDocuments}
	SaveDocuments   = Task{Name: "saveDocuments", Kind: DatabasesWithDocuments}
	RemoveDatabases = Task{Name: "removeDatabases", Kind: DatabasesOnly}
	RemoveDocuments = Task{Name: "removeDocuments", Kind: DatabasesWithDocuments}
	CleanDatabases  = Task{Name: "cleanDatabases", Kind: DatabasesOnly}
	WarmViews       = Task{Name: "warmViews", Kind: DatabasesWithDocuments}
	LiveDeployView  = Task{Name: "liveDeployView", Kind: DatabasesWithDocuments}
)

// Store is the database client boundary: one operation per task, each
// returning per-operation outcome records in execution order.
type Store interface {
	CreateDatabases(ctx context.Context, names []string) ([]couchdb.Result, error)
	CreateDocuments(ctx context.Context, s *setup.Setup) ([]couchdb.Result, error)
	SaveDocuments(ctx context.Context, s *setup.Setup) ([]couchdb.Result, error)
	RemoveDatabases(ctx context.Context, names []string) ([]couchdb.Result, error)
	RemoveDocuments(ctx context.Context, s *setup.Setup) ([]couchdb.Result, error)
	CleanDatabases(ctx context.Context, keep []string) ([]couchdb.Result, error)
	WarmViews(ctx context.Context, s *setup.Setup) ([]couchdb.Result, error)
	LiveDeployView(ctx context.Context, s *setup.Setup) ([]couchdb.Result, error)
}
