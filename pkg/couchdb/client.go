// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

// Package couchdb performs the remote store operations: creating and
// removing databases, writing and removing seed documents, warming view
// indexes and tracking live index builds.
package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	configutil "github.com/prometheus/common/config"

	"github.com/couchpenter/couchpenter/pkg/log"
	"github.com/couchpenter/couchpenter/pkg/setup"
	"github.com/couchpenter/couchpenter/pkg/util"
	"github.com/couchpenter/couchpenter/pkg/version"
)

const (
	// DefaultURL is the store address used when none is configured.
	DefaultURL = "http://localhost:5984"

	// DefaultInterval is the poll interval for live index-build progress.
	DefaultInterval = time.Second

	defaultTimeout   = 30 * time.Second
	designDocPrefix  = "_design/"
	stagedViewSuffix = "-deploy"
)

var userAgent = fmt.Sprintf("couchpenter/%s", version.Couchpenter)

// Config configures a store client.
type Config struct {
	// URL is scheme://[user:pass@]host:port. The userinfo part becomes
	// HTTP basic auth and is stripped from the request URL.
	URL string

	// Interval is the poll interval used by LiveDeployView.
	Interval time.Duration

	Timeout time.Duration
}

// Client talks to a CouchDB server. All operations process databases in
// the given order and documents in list order, one call at a time.
type Client struct {
	base     *url.URL
	http     *http.Client
	interval time.Duration

	// newTicker is a seam for tests stepping the deploy poll loop.
	newTicker func(time.Duration) util.Ticker
}

func NewClient(cfg Config) (*Client, error) {
	rawURL := cfg.URL
	if rawURL == "" {
		rawURL = DefaultURL
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}

	auth := Auth{}
	if base.User != nil {
		auth.Username = base.User.Username()
		auth.Password, _ = base.User.Password()
		base.User = nil
	}

	httpClient, err := configutil.NewClientFromConfig(auth.ToHTTPClientConfig(), "couchpenter")
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	httpClient.Timeout = timeout

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Client{
		base:      base,
		http:      httpClient,
		interval:  interval,
		newTicker: util.NewTicker,
	}, nil
}

// CreateDatabases creates every named database. Databases that already
// exist are reported and left alone.
func (c *Client) CreateDatabases(ctx context.Context, names []string) ([]Result, error) {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		status, _, err := c.do(ctx, http.MethodPut, name, nil, nil)
		if err != nil {
			return nil, &RemoteOperationError{Op: "createDatabases", Database: name, Err: err}
		}
		switch status {
		case http.StatusCreated, http.StatusAccepted:
			results = append(results, Result{Database: name, Action: "create", Message: "created"})
		case http.StatusPreconditionFailed:
			results = append(results, Result{Database: name, Action: "create", Message: "already exists"})
		default:
			return nil, &RemoteOperationError{Op: "createDatabases", Database: name, StatusCode: status}
		}
	}
	return results, nil
}

// RemoveDatabases deletes every named database. Databases that do not
// exist are reported and skipped.
func (c *Client) RemoveDatabases(ctx context.Context, names []string) ([]Result, error) {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		status, _, err := c.do(ctx, http.MethodDelete, name, nil, nil)
		if err != nil {
			return nil, &RemoteOperationError{Op: "removeDatabases", Database: name, Err: err}
		}
		switch status {
		case http.StatusOK, http.StatusAccepted:
			results = append(results, Result{Database: name, Action: "delete", Message: "deleted"})
		case http.StatusNotFound:
			results = append(results, Result{Database: name, Action: "delete", Message: "does not exist"})
		default:
			return nil, &RemoteOperationError{Op: "removeDatabases", Database: name, StatusCode: status}
		}
	}
	return results, nil
}

// CleanDatabases deletes every database on the server that is not part of
// the setup. System databases (leading underscore) are never touched.
func (c *Client) CleanDatabases(ctx context.Context, keep []string) ([]Result, error) {
	var all []string
	status, body, err := c.do(ctx, http.MethodGet, "_all_dbs", nil, nil)
	if err != nil {
		return nil, &RemoteOperationError{Op: "cleanDatabases", Database: "_all_dbs", Err: err}
	}
	if status != http.StatusOK {
		return nil, &RemoteOperationError{Op: "cleanDatabases", Database: "_all_dbs", StatusCode: status}
	}
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, &RemoteOperationError{Op: "cleanDatabases", Database: "_all_dbs", Err: err}
	}

	keepSet := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		keepSet[name] = struct{}{}
	}

	var results []Result
	for _, name := range all {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := keepSet[name]; ok {
			continue
		}
		status, _, err := c.do(ctx, http.MethodDelete, name, nil, nil)
		if err != nil {
			return nil, &RemoteOperationError{Op: "cleanDatabases", Database: name, Err: err}
		}
		switch status {
		case http.StatusOK, http.StatusAccepted:
			results = append(results, Result{Database: name, Action: "delete", Message: "deleted"})
		case http.StatusNotFound:
			results = append(results, Result{Database: name, Action: "delete", Message: "does not exist"})
		default:
			return nil, &RemoteOperationError{Op: "cleanDatabases", Database: name, StatusCode: status}
		}
	}
	return results, nil
}

// CreateDocuments writes the setup documents, never overwriting: a
// document whose _id already exists on the server is reported and
// skipped. Documents without an _id get one assigned so that repeated
// runs within one invocation stay idempotent.
func (c *Client) CreateDocuments(ctx context.Context, s *setup.Setup) ([]Result, error) {
	return c.eachDocument(ctx, s, "createDocuments", func(ctx context.Context, db string, doc map[string]interface{}) (Result, error) {
		id := ensureID(doc)
		_, exists, err := c.fetchRev(ctx, db, id)
		if err != nil {
			return Result{}, err
		}
		if exists {
			return Result{Database: db, ID: id, Action: "create", Message: "already exists"}, nil
		}
		if err := c.putDocument(ctx, db, id, doc, ""); err != nil {
			return Result{}, err
		}
		return Result{Database: db, ID: id, Action: "create", Message: "created"}, nil
	})
}

// SaveDocuments writes the setup documents, overwriting any existing
// revisions.
func (c *Client) SaveDocuments(ctx context.Context, s *setup.Setup) ([]Result, error) {
	return c.eachDocument(ctx, s, "saveDocuments", func(ctx context.Context, db string, doc map[string]interface{}) (Result, error) {
		id := ensureID(doc)
		rev, _, err := c.fetchRev(ctx, db, id)
		if err != nil {
			return Result{}, err
		}
		if err := c.putDocument(ctx, db, id, doc, rev); err != nil {
			return Result{}, err
		}
		return Result{Database: db, ID: id, Action: "save", Message: "saved"}, nil
	})
}

// RemoveDocuments deletes the setup documents from the server. Documents
// that are absent, or that carry no _id to address them by, are reported
// and skipped.
func (c *Client) RemoveDocuments(ctx context.Context, s *setup.Setup) ([]Result, error) {
	return c.eachDocument(ctx, s, "removeDocuments", func(ctx context.Context, db string, doc map[string]interface{}) (Result, error) {
		id, _ := doc["_id"].(string)
		if id == "" {
			return Result{Database: db, Action: "delete", Message: "skipped, no _id"}, nil
		}
		rev, exists, err := c.fetchRev(ctx, db, id)
		if err != nil {
			return Result{}, err
		}
		if !exists {
			return Result{Database: db, ID: id, Action: "delete", Message: "does not exist"}, nil
		}
		q := url.Values{"rev": []string{rev}}
		status, _, err := c.do(ctx, http.MethodDelete, db+"/"+id+"?"+q.Encode(), nil, nil)
		if err != nil {
			return Result{}, err
		}
		if status != http.StatusOK && status != http.StatusAccepted {
			return Result{}, &RemoteOperationError{Op: "removeDocuments", Database: db, ID: id, StatusCode: status}
		}
		return Result{Database: db, ID: id, Action: "delete", Message: "deleted"}, nil
	})
}

// WarmViews queries every view of every design document in the setup with
// limit=1, triggering an index build or refresh.
func (c *Client) WarmViews(ctx context.Context, s *setup.Setup) ([]Result, error) {
	var results []Result
	for _, db := range s.Databases() {
		docs, _ := s.Documents(db)
		for _, ddoc := range designDocuments(docs) {
			id, _ := ddoc["_id"].(string)
			for _, view := range viewNames(ddoc) {
				if err := c.queryView(ctx, db, id, view, false); err != nil {
					return nil, err
				}
				results = append(results, Result{Database: db, ID: id, Action: "warm", Message: view})
			}
		}
	}
	return results, nil
}

func (c *Client) eachDocument(ctx context.Context, s *setup.Setup, op string,
	fn func(context.Context, string, map[string]interface{}) (Result, error)) ([]Result, error) {

	var results []Result
	for _, db := range s.Databases() {
		docs, _ := s.Documents(db)
		for _, doc := range flatten(docs) {
			res, err := fn(ctx, db, doc)
			if err != nil {
				if opErr, ok := err.(*RemoteOperationError); ok {
					return nil, opErr
				}
				id, _ := doc["_id"].(string)
				return nil, &RemoteOperationError{Op: op, Database: db, ID: id, Err: err}
			}
			results = append(results, res)
		}
	}
	return results, nil
}

// flatten expands nested document lists one level at a time, yielding the
// object documents in order.
func flatten(docs []interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, d := range docs {
		switch v := d.(type) {
		case map[string]interface{}:
			out = append(out, v)
		case []interface{}:
			out = append(out, flatten(v)...)
		}
	}
	return out
}

func designDocuments(docs []interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, doc := range flatten(docs) {
		if id, _ := doc["_id"].(string); strings.HasPrefix(id, designDocPrefix) {
			out = append(out, doc)
		}
	}
	return out
}

// viewNames returns the declared view names of a design document, sorted
// for deterministic warm-up order.
func viewNames(ddoc map[string]interface{}) []string {
	views, _ := ddoc["views"].(map[string]interface{})
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ensureID(doc map[string]interface{}) string {
	if id, _ := doc["_id"].(string); id != "" {
		return id
	}
	id := uuid.NewString()
	doc["_id"] = id
	return id
}

// fetchRev returns the current revision of a document, if it exists.
func (c *Client) fetchRev(ctx context.Context, db, id string) (rev string, exists bool, err error) {
	status, body, err := c.do(ctx, http.MethodGet, db+"/"+id, nil, nil)
	if err != nil {
		return "", false, err
	}
	switch status {
	case http.StatusOK:
		var doc struct {
			Rev string `json:"_rev"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return "", false, errors.Wrap(err, "decoding document")
		}
		return doc.Rev, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, &RemoteOperationError{Op: "getDocument", Database: db, ID: id, StatusCode: status}
	}
}

// putDocument writes a document under id, carrying rev when overwriting.
// The stored document never includes a stale _rev from the setup.
func (c *Client) putDocument(ctx context.Context, db, id string, doc map[string]interface{}, rev string) error {
	payload := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		payload[k] = v
	}
	delete(payload, "_rev")
	if rev != "" {
		payload["_rev"] = rev
	}
	status, _, err := c.do(ctx, http.MethodPut, db+"/"+id, nil, payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusAccepted {
		return &RemoteOperationError{Op: "putDocument", Database: db, ID: id, StatusCode: status}
	}
	return nil
}

// queryView reads one row of a view. With stale set the query returns
// immediately and the index build continues in the background.
func (c *Client) queryView(ctx context.Context, db, ddocID, view string, stale bool) error {
	q := url.Values{"limit": []string{"1"}}
	if stale {
		q.Set("stale", "update_after")
	}
	p := db + "/" + ddocID + "/_view/" + view + "?" + q.Encode()
	status, _, err := c.do(ctx, http.MethodGet, p, nil, nil)
	if err != nil {
		return &RemoteOperationError{Op: "warmViews", Database: db, ID: ddocID, Err: err}
	}
	if status != http.StatusOK {
		return &RemoteOperationError{Op: "warmViews", Database: db, ID: ddocID, StatusCode: status}
	}
	return nil
}

// do performs one request against the store. It returns the response
// status and body; transport failures are the only errors.
func (c *Client) do(ctx context.Context, method, p string, header http.Header, body interface{}) (int, []byte, error) {
	u := *c.base
	if i := strings.IndexByte(p, '?'); i >= 0 {
		u.RawQuery = p[i+1:]
		p = p[:i]
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + p

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errors.Wrap(err, "encoding request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, p)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "reading %s %s response", method, p)
	}
	log.Debug("msg", "store call", "method", method, "path", p, "status", resp.StatusCode)
	return resp.StatusCode, data, nil
}
