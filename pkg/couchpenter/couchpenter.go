// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

// Package couchpenter exposes the named high-level operations as fixed
// task sequences over the orchestrator.
package couchpenter

import (
	"context"
	"time"

	"github.com/couchpenter/couchpenter/pkg/couchdb"
	"github.com/couchpenter/couchpenter/pkg/document"
	"github.com/couchpenter/couchpenter/pkg/setup"
	"github.com/couchpenter/couchpenter/pkg/task"
)

// Options configures a Couchpenter instance.
type Options struct {
	// URL of the store, scheme://[user:pass@]host:port.
	URL string

	// SetupFile is the path of the setup description, read once per
	// operation. Defaults to couchpenter.json.
	SetupFile string

	// Dir is the base directory for resolving document file and provider
	// references. Defaults to the current working directory.
	Dir string

	// Prefix is prepended to every database name.
	Prefix string

	// DBSetup is an explicit in-memory setup, bypassing file loading.
	DBSetup *setup.Setup

	// Interval is the poll interval for live index-build tracking.
	Interval time.Duration
}

// Couchpenter provisions databases and seed documents against one store.
// Every operation loads the setup fresh and runs its task sequence
// strictly in order, stopping at the first failure.
type Couchpenter struct {
	opts      Options
	store     task.Store
	providers map[string]document.ProviderFunc
}

func New(opts Options) (*Couchpenter, error) {
	store, err := couchdb.NewClient(couchdb.Config{URL: opts.URL, Interval: opts.Interval})
	if err != nil {
		return nil, err
	}
	return &Couchpenter{
		opts:      opts,
		store:     store,
		providers: make(map[string]document.ProviderFunc),
	}, nil
}

// InitSetupFile writes a sample setup file to path, refusing to replace
// an existing one.
func InitSetupFile(path string) error {
	return setup.WriteSample(path)
}

// RegisterProvider adds a named document source used to resolve setup
// entries that are neither objects nor data-file references.
func (c *Couchpenter) RegisterProvider(name string, p document.ProviderFunc) {
	c.providers[name] = p
}

// SetUp creates the configured databases and saves their documents.
func (c *Couchpenter) SetUp(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.CreateDatabases, task.SaveDocuments)
}

// SetUpDatabases creates the configured databases only.
func (c *Couchpenter) SetUpDatabases(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.CreateDatabases)
}

// SetUpDocuments writes the configured documents without overwriting
// documents that already exist.
func (c *Couchpenter) SetUpDocuments(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.CreateDocuments)
}

// SetUpDocumentsOverwrite writes the configured documents, overwriting
// existing ones.
func (c *Couchpenter) SetUpDocumentsOverwrite(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.SaveDocuments)
}

// TearDown removes the configured databases.
func (c *Couchpenter) TearDown(ctx context.Context) ([]couchdb.Result, error) {
	return c.TearDownDatabases(ctx)
}

// TearDownDatabases removes the configured databases.
func (c *Couchpenter) TearDownDatabases(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.RemoveDatabases)
}

// TearDownDocuments removes the configured documents.
func (c *Couchpenter) TearDownDocuments(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.RemoveDocuments)
}

// ResetDatabases removes and recreates the configured databases.
func (c *Couchpenter) ResetDatabases(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.RemoveDatabases, task.CreateDatabases)
}

// Reset removes and recreates the configured databases and documents.
func (c *Couchpenter) Reset(ctx context.Context) ([]couchdb.Result, error) {
	return c.ResetDocuments(ctx)
}

// ResetDocuments removes and recreates the configured databases and
// documents.
func (c *Couchpenter) ResetDocuments(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.RemoveDatabases, task.CreateDatabases, task.CreateDocuments)
}

// Clean removes every database on the server that is not configured.
func (c *Couchpenter) Clean(ctx context.Context) ([]couchdb.Result, error) {
	return c.CleanDatabases(ctx)
}

// CleanDatabases removes every database on the server that is not
// configured.
func (c *Couchpenter) CleanDatabases(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.CleanDatabases)
}

// WarmViews triggers an index build for every configured view.
func (c *Couchpenter) WarmViews(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.WarmViews)
}

// LiveDeployView deploys the configured design documents while tracking
// index-build progress.
func (c *Couchpenter) LiveDeployView(ctx context.Context) ([]couchdb.Result, error) {
	return c.run(ctx, task.LiveDeployView)
}

func (c *Couchpenter) run(ctx context.Context, tasks ...task.Task) ([]couchdb.Result, error) {
	loader := setup.Loader{SetupFile: c.opts.SetupFile, Prefix: c.opts.Prefix}
	s, err := loader.Load(c.opts.DBSetup)
	if err != nil {
		return nil, err
	}

	resolver := document.NewResolver(c.opts.Dir)
	for name, p := range c.providers {
		resolver.Register(name, p)
	}

	return task.NewOrchestrator(c.store, resolver).Run(ctx, tasks, s)
}
