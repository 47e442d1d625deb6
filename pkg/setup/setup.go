// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

// Package setup holds the declarative description driving all store
// operations: a mapping from database name to the list of documents that
// database should be seeded with.
package setup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Setup maps database names to document lists. Iteration order follows
// the order in which databases were added, which for file-loaded setups
// is the key order of the setup file.
type Setup struct {
	names []string
	docs  map[string][]interface{}
}

func New() *Setup {
	return &Setup{docs: make(map[string][]interface{})}
}

// Add sets the document list for a database. Adding an existing name
// replaces its list and keeps its position; last write wins.
func (s *Setup) Add(name string, docs []interface{}) {
	if s.docs == nil {
		s.docs = make(map[string][]interface{})
	}
	if _, ok := s.docs[name]; !ok {
		s.names = append(s.names, name)
	}
	s.docs[name] = docs
}

// Databases returns the database names in setup order.
func (s *Setup) Databases() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Documents returns the document list for a database.
func (s *Setup) Documents(name string) ([]interface{}, bool) {
	docs, ok := s.docs[name]
	return docs, ok
}

// SetDocuments replaces the document list of an existing database. It is
// a no-op for unknown names.
func (s *Setup) SetDocuments(name string, docs []interface{}) {
	if _, ok := s.docs[name]; ok {
		s.docs[name] = docs
	}
}

func (s *Setup) Len() int {
	return len(s.names)
}

// Clone copies the setup: database order and document lists are
// independent of the original, the documents themselves are shared.
func (s *Setup) Clone() *Setup {
	c := New()
	for _, name := range s.names {
		var docs []interface{}
		if orig := s.docs[name]; orig != nil {
			docs = make([]interface{}, len(orig))
			copy(docs, orig)
		}
		c.Add(name, docs)
	}
	return c
}

// ApplyPrefix rewrites every database name to prefix+name, keeping each
// document list. If two rewritten names collide the later entry silently
// replaces the earlier one. Applying a non-empty prefix twice stacks it;
// callers own prefix hygiene.
func (s *Setup) ApplyPrefix(prefix string) {
	if prefix == "" {
		return
	}
	names := s.names
	docs := s.docs
	s.names = nil
	s.docs = make(map[string][]interface{}, len(names))
	for _, name := range names {
		s.Add(prefix+name, docs[name])
	}
}

// UnmarshalJSON decodes a setup description, preserving the key order of
// the JSON object. Every value must be a list.
func (s *Setup) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("setup must be a JSON object mapping database names to document lists")
	}

	s.names = nil
	s.docs = make(map[string][]interface{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name := keyTok.(string)

		var docs []interface{}
		if err := dec.Decode(&docs); err != nil {
			return fmt.Errorf("database %q: value must be a document list: %w", name, err)
		}
		s.Add(name, docs)
	}

	_, err = dec.Token() // consume the closing brace
	return err
}

// MarshalJSON encodes the setup with databases in setup order.
func (s *Setup) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		docs := s.docs[name]
		if docs == nil {
			docs = []interface{}{}
		}
		val, err := json.Marshal(docs)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
