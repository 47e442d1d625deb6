// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchpenter/couchpenter/pkg/setup"
	"github.com/stretchr/testify/require"
)

func TestResolvePassThrough(t *testing.T) {
	obj := map[string]interface{}{"_id": "a"}
	list := []interface{}{map[string]interface{}{"_id": "b"}}

	s := setup.New()
	s.Add("db1", []interface{}{obj, list})

	r := NewResolver(t.TempDir())
	require.NoError(t, r.Resolve(s))

	docs, _ := s.Documents("db1")
	require.Equal(t, []interface{}{obj, list}, docs)

	// Resolving again is a no-op.
	require.NoError(t, r.Resolve(s))
	docs, _ = s.Documents("db1")
	require.Equal(t, []interface{}{obj, list}, docs)
}

func TestResolveDataFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "seed.json"),
		[]byte(`{"_id": "seed", "n": 1}`), 0o644))

	s := setup.New()
	s.Add("db1", []interface{}{"data/seed.json"})

	require.NoError(t, NewResolver(dir).Resolve(s))

	docs, _ := s.Documents("db1")
	require.Equal(t, []interface{}{map[string]interface{}{"_id": "seed", "n": float64(1)}}, docs)
}

func TestResolveDataFileList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seeds.json"),
		[]byte(`[{"_id": "a"}, {"_id": "b"}]`), 0o644))

	s := setup.New()
	s.Add("db1", []interface{}{"seeds.json"})

	require.NoError(t, NewResolver(dir).Resolve(s))

	docs, _ := s.Documents("db1")
	require.Len(t, docs, 1)
	require.Len(t, docs[0], 2)
}

func TestResolveProvider(t *testing.T) {
	s := setup.New()
	s.Add("db1", []interface{}{"providers/admin"})

	r := NewResolver("")
	r.Register("providers/admin", func() (interface{}, error) {
		return map[string]interface{}{"_id": "admin"}, nil
	})
	require.NoError(t, r.Resolve(s))

	docs, _ := s.Documents("db1")
	require.Equal(t, []interface{}{map[string]interface{}{"_id": "admin"}}, docs)
}

func TestResolveUnregisteredProvider(t *testing.T) {
	s := setup.New()
	s.Add("db1", []interface{}{"providers/missing"})

	err := NewResolver("").Resolve(s)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "db1", resErr.Database)
	require.Equal(t, "providers/missing", resErr.Ref)
}

func TestResolveProviderError(t *testing.T) {
	s := setup.New()
	s.Add("db1", []interface{}{"providers/broken"})

	r := NewResolver("")
	boom := errors.New("boom")
	r.Register("providers/broken", func() (interface{}, error) { return nil, boom })

	err := r.Resolve(s)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.ErrorIs(t, err, boom)
}

func TestResolveMissingFile(t *testing.T) {
	s := setup.New()
	s.Add("db1", []interface{}{"missing.json"})

	err := NewResolver(t.TempDir()).Resolve(s)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "missing.json", resErr.Ref)
}

func TestResolveInvalidEntries(t *testing.T) {
	tcs := []struct {
		name  string
		entry interface{}
	}{
		{name: "number", entry: float64(42)},
		{name: "bool", entry: true},
		{name: "nil", entry: nil},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			s := setup.New()
			s.Add("db1", []interface{}{tc.entry})

			err := NewResolver("").Resolve(s)
			var invErr *InvalidDocumentError
			require.ErrorAs(t, err, &invErr)
			require.Equal(t, "db1", invErr.Database)
		})
	}
}

func TestResolveScalarFileContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scalar.json"), []byte(`42`), 0o644))

	s := setup.New()
	s.Add("db1", []interface{}{"scalar.json"})

	err := NewResolver(dir).Resolve(s)
	var invErr *InvalidDocumentError
	require.ErrorAs(t, err, &invErr)
}

func TestResolveReportsFirstInvalidDocument(t *testing.T) {
	s := setup.New()
	s.Add("db2", []interface{}{float64(1)})
	s.Add("db1", []interface{}{float64(2)})

	err := NewResolver("").Resolve(s)
	var invErr *InvalidDocumentError
	require.ErrorAs(t, err, &invErr)
	require.Equal(t, "db2", invErr.Database) // setup order, not lexical order
}
