// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package couchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/couchpenter/couchpenter/pkg/setup"
	"github.com/couchpenter/couchpenter/pkg/util"
)

type recorder struct {
	requests []string
}

func (r *recorder) record(req *http.Request) {
	line := req.Method + " " + req.URL.Path
	if req.URL.RawQuery != "" {
		line += "?" + req.URL.RawQuery
	}
	r.requests = append(r.requests, line)
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec.record(req)
		h.ServeHTTP(w, req)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL})
	require.NoError(t, err)
	return c, rec
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func docSetup(db string, docs ...interface{}) *setup.Setup {
	s := setup.New()
	s.Add(db, docs)
	return s
}

func TestCreateDatabases(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPut, req.Method)
		if req.URL.Path == "/db2" {
			respond(w, http.StatusPreconditionFailed, `{"error":"file_exists"}`)
			return
		}
		respond(w, http.StatusCreated, `{"ok":true}`)
	}))

	results, err := c.CreateDatabases(context.Background(), []string{"db1", "db2"})
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "db1", Action: "create", Message: "created"},
		{Database: "db2", Action: "create", Message: "already exists"},
	}, results)
	require.Equal(t, []string{"PUT /db1", "PUT /db2"}, rec.requests)
}

func TestCreateDatabasesServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respond(w, http.StatusInternalServerError, `{"error":"boom"}`)
	}))

	results, err := c.CreateDatabases(context.Background(), []string{"db1"})
	require.Nil(t, results)

	var opErr *RemoteOperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, "createDatabases", opErr.Op)
	require.Equal(t, "db1", opErr.Database)
	require.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
}

func TestRemoveDatabases(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodDelete, req.Method)
		if req.URL.Path == "/gone" {
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
			return
		}
		respond(w, http.StatusOK, `{"ok":true}`)
	}))

	results, err := c.RemoveDatabases(context.Background(), []string{"db1", "gone"})
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "db1", Action: "delete", Message: "deleted"},
		{Database: "gone", Action: "delete", Message: "does not exist"},
	}, results)
	require.Equal(t, []string{"DELETE /db1", "DELETE /gone"}, rec.requests)
}

func TestCleanDatabases(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/_all_dbs" {
			respond(w, http.StatusOK, `["_replicator","_users","db1","old1","old2"]`)
			return
		}
		require.Equal(t, http.MethodDelete, req.Method)
		if req.URL.Path == "/old2" {
			// Dropped by somebody else between the listing and the delete.
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
			return
		}
		respond(w, http.StatusOK, `{"ok":true}`)
	}))

	results, err := c.CleanDatabases(context.Background(), []string{"db1"})
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "old1", Action: "delete", Message: "deleted"},
		{Database: "old2", Action: "delete", Message: "does not exist"},
	}, results)
	require.Equal(t, []string{"GET /_all_dbs", "DELETE /old1", "DELETE /old2"}, rec.requests)
}

func TestCreateDocumentsDoesNotOverwrite(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method + " " + req.URL.Path {
		case "GET /db1/a":
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
		case "PUT /db1/a":
			respond(w, http.StatusCreated, `{"ok":true,"rev":"1-a"}`)
		case "GET /db1/b":
			respond(w, http.StatusOK, `{"_id":"b","_rev":"1-b"}`)
		default:
			t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		}
	}))

	s := docSetup("db1",
		map[string]interface{}{"_id": "a"},
		map[string]interface{}{"_id": "b"},
	)
	results, err := c.CreateDocuments(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "db1", ID: "a", Action: "create", Message: "created"},
		{Database: "db1", ID: "b", Action: "create", Message: "already exists"},
	}, results)
	require.NotContains(t, rec.requests, "PUT /db1/b")
}

func TestCreateDocumentsAssignsID(t *testing.T) {
	var putID string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/db1/")
		switch req.Method {
		case http.MethodGet:
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
		case http.MethodPut:
			putID = id
			respond(w, http.StatusCreated, `{"ok":true}`)
		}
	}))

	doc := map[string]interface{}{"key": "value"}
	results, err := c.CreateDocuments(context.Background(), docSetup("db1", doc))
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = uuid.Parse(putID)
	require.NoError(t, err)
	require.Equal(t, putID, doc["_id"]) // stable for the rest of the invocation
}

func TestSaveDocumentsOverwrites(t *testing.T) {
	var putBody map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			respond(w, http.StatusOK, `{"_id":"a","_rev":"3-z"}`)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(req.Body).Decode(&putBody))
			respond(w, http.StatusCreated, `{"ok":true,"rev":"4-a"}`)
		}
	}))

	s := docSetup("db1", map[string]interface{}{"_id": "a", "key": "new"})
	results, err := c.SaveDocuments(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []Result{{Database: "db1", ID: "a", Action: "save", Message: "saved"}}, results)
	require.Equal(t, "3-z", putBody["_rev"])
	require.Equal(t, "new", putBody["key"])
}

func TestSaveDocumentsNewDocumentHasNoRev(t *testing.T) {
	var putBody map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(req.Body).Decode(&putBody))
			respond(w, http.StatusCreated, `{"ok":true}`)
		}
	}))

	// A stale _rev in the setup must not leak into the request.
	s := docSetup("db1", map[string]interface{}{"_id": "a", "_rev": "9-stale"})
	_, err := c.SaveDocuments(context.Background(), s)
	require.NoError(t, err)
	require.NotContains(t, putBody, "_rev")
}

func TestRemoveDocuments(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method + " " + req.URL.Path {
		case "GET /db1/a":
			respond(w, http.StatusOK, `{"_id":"a","_rev":"2-x"}`)
		case "DELETE /db1/a":
			require.Equal(t, "2-x", req.URL.Query().Get("rev"))
			respond(w, http.StatusOK, `{"ok":true}`)
		case "GET /db1/b":
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
		default:
			t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		}
	}))

	s := docSetup("db1",
		map[string]interface{}{"_id": "a"},
		map[string]interface{}{"_id": "b"},
		map[string]interface{}{"key": "no id"},
	)
	results, err := c.RemoveDocuments(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "db1", ID: "a", Action: "delete", Message: "deleted"},
		{Database: "db1", ID: "b", Action: "delete", Message: "does not exist"},
		{Database: "db1", Action: "delete", Message: "skipped, no _id"},
	}, results)
	require.Contains(t, rec.requests, "DELETE /db1/a?rev=2-x")
}

func TestWarmViews(t *testing.T) {
	c, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "1", req.URL.Query().Get("limit"))
		respond(w, http.StatusOK, `{"total_rows":0,"rows":[]}`)
	}))

	s := docSetup("db1",
		map[string]interface{}{"_id": "plain"}, // not a design doc, ignored
		map[string]interface{}{
			"_id": "_design/app",
			"views": map[string]interface{}{
				"by_name": map[string]interface{}{"map": "function(doc){}"},
				"by_id":   map[string]interface{}{"map": "function(doc){}"},
			},
		},
	)
	results, err := c.WarmViews(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "db1", ID: "_design/app", Action: "warm", Message: "by_id"},
		{Database: "db1", ID: "_design/app", Action: "warm", Message: "by_name"},
	}, results)
	require.Equal(t, []string{
		"GET /db1/_design/app/_view/by_id?limit=1",
		"GET /db1/_design/app/_view/by_name?limit=1",
	}, rec.requests)
}

func TestNestedDocumentListsAreFlattened(t *testing.T) {
	var putPaths []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			respond(w, http.StatusNotFound, `{"error":"not_found"}`)
		case http.MethodPut:
			putPaths = append(putPaths, req.URL.Path)
			respond(w, http.StatusCreated, `{"ok":true}`)
		}
	}))

	s := docSetup("db1", []interface{}{
		map[string]interface{}{"_id": "a"},
		map[string]interface{}{"_id": "b"},
	})
	results, err := c.CreateDocuments(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []string{"/db1/a", "/db1/b"}, putPaths)
}

func TestBasicAuthFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			respond(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
			return
		}
		respond(w, http.StatusCreated, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)

	authURL := strings.Replace(srv.URL, "http://", "http://admin:secret@", 1)
	c, err := NewClient(Config{URL: authURL})
	require.NoError(t, err)

	results, err := c.CreateDatabases(context.Background(), []string{"db1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestLiveDeployView(t *testing.T) {
	activeTaskCalls := 0
	var (
		c   *Client
		rec *recorder
	)
	c, rec = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := req.Method + " " + req.URL.Path
		switch key {
		case "GET /_active_tasks":
			activeTaskCalls++
			if activeTaskCalls == 1 {
				respond(w, http.StatusOK,
					`[{"type":"indexer","database":"db1","design_document":"_design/app-deploy","progress":40}]`)
				return
			}
			respond(w, http.StatusOK, `[]`)
		case "GET /db1/_design/app-deploy":
			if len(rec.requests) == 1 {
				// Staging: no staged copy yet.
				respond(w, http.StatusNotFound, `{"error":"not_found"}`)
				return
			}
			respond(w, http.StatusOK, `{"_id":"_design/app-deploy","_rev":"1-s"}`)
		case "PUT /db1/_design/app-deploy":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			require.Equal(t, "_design/app-deploy", body["_id"])
			respond(w, http.StatusCreated, `{"ok":true}`)
		case "GET /db1/_design/app-deploy/_view/by_id":
			require.Equal(t, "update_after", req.URL.Query().Get("stale"))
			respond(w, http.StatusOK, `{"rows":[]}`)
		case "GET /db1/_design/app":
			respond(w, http.StatusOK, `{"_id":"_design/app","_rev":"5-a"}`)
		case "PUT /db1/_design/app":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			require.Equal(t, "5-a", body["_rev"])
			respond(w, http.StatusCreated, `{"ok":true}`)
		case "DELETE /db1/_design/app-deploy":
			require.Equal(t, "1-s", req.URL.Query().Get("rev"))
			respond(w, http.StatusOK, `{"ok":true}`)
		default:
			t.Fatalf("unexpected request %s", key)
		}
	}))

	manual := util.NewManualTicker(1)
	manual.Tick() // let the single poll wait proceed immediately
	c.newTicker = func(time.Duration) util.Ticker { return manual }

	s := docSetup("db1", map[string]interface{}{
		"_id": "_design/app",
		"views": map[string]interface{}{
			"by_id": map[string]interface{}{"map": "function(doc){}"},
		},
	})
	results, err := c.LiveDeployView(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Database: "db1", ID: "_design/app", Action: "deploy", Message: "deployed"},
	}, results)

	require.Equal(t, 2, activeTaskCalls)
	require.Contains(t, rec.requests, "PUT /db1/_design/app")
	require.Contains(t, rec.requests, "DELETE /db1/_design/app-deploy?rev=1-s")
}

func TestDefaultConfig(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultURL, c.base.String())
	require.Equal(t, DefaultInterval, c.interval)
}

func TestInvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "://not-a-url"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing server URL")
}

func TestConnectionError(t *testing.T) {
	c, err := NewClient(Config{URL: fmt.Sprintf("http://127.0.0.1:%d", 1)})
	require.NoError(t, err)

	_, err = c.CreateDatabases(context.Background(), []string{"db1"})
	var opErr *RemoteOperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, "db1", opErr.Database)
}
