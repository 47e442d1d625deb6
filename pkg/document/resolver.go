// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

// Package document resolves setup entries into concrete documents.
//
// A document specification is one of: an already-materialized object or
// list (used as-is), a string ending in ".json" referencing a data file
// under the resolver base directory, or any other string naming a
// registered document provider. Anything else is a configuration error.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchpenter/couchpenter/pkg/setup"
)

// DataFileSuffix marks document specifications that load from disk.
const DataFileSuffix = ".json"

// ProviderFunc produces a document for a named document source. The
// returned value must be an object or a list.
type ProviderFunc func() (interface{}, error)

// InvalidDocumentError reports a document entry that is neither an
// object, a list, nor a resolvable string reference.
type InvalidDocumentError struct {
	Database string
	Value    interface{}
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("database %s: document entry %v (%T) is not an object, a list, or a resolvable reference",
		e.Database, e.Value, e.Value)
}

// ResolutionError reports a document reference whose file or provider
// could not be loaded.
type ResolutionError struct {
	Database string
	Ref      string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("database %s: resolving document reference %q: %v", e.Database, e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver substitutes document specifications with concrete documents.
// String references resolve against the base directory for data files and
// against the registered providers for everything else.
type Resolver struct {
	dir       string
	providers map[string]ProviderFunc
}

func NewResolver(dir string) *Resolver {
	if dir == "" {
		dir = "."
	}
	return &Resolver{dir: dir, providers: make(map[string]ProviderFunc)}
}

// Register adds a named document provider. Registering an existing name
// replaces the provider.
func (r *Resolver) Register(name string, p ProviderFunc) {
	r.providers[name] = p
}

// Resolve substitutes every document specification in s in place.
// Databases are processed in setup order, documents in list order, so the
// first invalid entry is the first one reported. Resolving an already
// resolved setup is a no-op.
func (r *Resolver) Resolve(s *setup.Setup) error {
	for _, name := range s.Databases() {
		docs, _ := s.Documents(name)
		for i, d := range docs {
			resolved, err := r.resolveEntry(name, d)
			if err != nil {
				return err
			}
			docs[i] = resolved
		}
		s.SetDocuments(name, docs)
	}
	return nil
}

func (r *Resolver) resolveEntry(database string, entry interface{}) (interface{}, error) {
	switch v := entry.(type) {
	case map[string]interface{}, []interface{}:
		return v, nil
	case string:
		if strings.HasSuffix(v, DataFileSuffix) {
			return r.loadFile(database, v)
		}
		return r.loadProvider(database, v)
	default:
		return nil, &InvalidDocumentError{Database: database, Value: entry}
	}
}

func (r *Resolver) loadFile(database, ref string) (interface{}, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, ref))
	if err != nil {
		return nil, &ResolutionError{Database: database, Ref: ref, Err: err}
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ResolutionError{Database: database, Ref: ref, Err: err}
	}
	return validateResolved(database, doc)
}

func (r *Resolver) loadProvider(database, ref string) (interface{}, error) {
	p, ok := r.providers[ref]
	if !ok {
		return nil, &ResolutionError{Database: database, Ref: ref, Err: fmt.Errorf("no document provider registered")}
	}
	doc, err := p()
	if err != nil {
		return nil, &ResolutionError{Database: database, Ref: ref, Err: err}
	}
	return validateResolved(database, doc)
}

// validateResolved enforces the post-resolution invariant: every document
// is an object or a list.
func validateResolved(database string, doc interface{}) (interface{}, error) {
	switch doc.(type) {
	case map[string]interface{}, []interface{}:
		return doc, nil
	default:
		return nil, &InvalidDocumentError{Database: database, Value: doc}
	}
}
