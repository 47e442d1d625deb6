// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package couchdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/couchpenter/couchpenter/pkg/log"
	"github.com/couchpenter/couchpenter/pkg/setup"
)

// activeTask is one entry of the server's /_active_tasks response.
type activeTask struct {
	Type           string `json:"type"`
	Database       string `json:"database"`
	DesignDocument string `json:"design_document"`
	Progress       int    `json:"progress"`
}

// LiveDeployView deploys the setup's design documents without taking the
// live views offline. Each design document is first written under a
// staged id, its views are warmed in the background and the index build
// is tracked through /_active_tasks at the configured poll interval. Once
// the build settles the live design document is overwritten with the
// staged content and the staged copy is removed.
func (c *Client) LiveDeployView(ctx context.Context, s *setup.Setup) ([]Result, error) {
	var results []Result
	for _, db := range s.Databases() {
		docs, _ := s.Documents(db)
		for _, ddoc := range designDocuments(docs) {
			id, _ := ddoc["_id"].(string)
			if err := c.deployDesignDoc(ctx, db, id, ddoc); err != nil {
				return nil, err
			}
			results = append(results, Result{Database: db, ID: id, Action: "deploy", Message: "deployed"})
		}
	}
	return results, nil
}

func (c *Client) deployDesignDoc(ctx context.Context, db, id string, ddoc map[string]interface{}) error {
	stagedID := id + stagedViewSuffix

	staged := make(map[string]interface{}, len(ddoc))
	for k, v := range ddoc {
		staged[k] = v
	}
	staged["_id"] = stagedID

	// Stage the new design document next to the live one.
	rev, _, err := c.fetchRev(ctx, db, stagedID)
	if err != nil {
		return wrapDeployErr(err, db, stagedID)
	}
	if err := c.putDocument(ctx, db, stagedID, staged, rev); err != nil {
		return wrapDeployErr(err, db, stagedID)
	}

	// Kick off the index build without blocking on it.
	for _, view := range viewNames(staged) {
		if err := c.queryView(ctx, db, stagedID, view, true); err != nil {
			return err
		}
	}

	if err := c.waitForIndexer(ctx, db, stagedID); err != nil {
		return wrapDeployErr(err, db, stagedID)
	}

	// The staged index is ready: overwrite the live design document and
	// drop the staged copy.
	rev, _, err = c.fetchRev(ctx, db, id)
	if err != nil {
		return wrapDeployErr(err, db, id)
	}
	if err := c.putDocument(ctx, db, id, ddoc, rev); err != nil {
		return wrapDeployErr(err, db, id)
	}

	rev, exists, err := c.fetchRev(ctx, db, stagedID)
	if err != nil {
		return wrapDeployErr(err, db, stagedID)
	}
	if exists {
		q := url.Values{"rev": []string{rev}}
		status, _, err := c.do(ctx, http.MethodDelete, db+"/"+stagedID+"?"+q.Encode(), nil, nil)
		if err != nil {
			return wrapDeployErr(err, db, stagedID)
		}
		if status != http.StatusOK && status != http.StatusAccepted {
			return &RemoteOperationError{Op: "liveDeployView", Database: db, ID: stagedID, StatusCode: status}
		}
	}
	return nil
}

// waitForIndexer polls the server until no indexer task references the
// staged design document.
func (c *Client) waitForIndexer(ctx context.Context, db, stagedID string) error {
	tick := c.newTicker(c.interval)
	defer tick.Stop()

	for {
		task, building, err := c.indexerTask(ctx, db, stagedID)
		if err != nil {
			return err
		}
		if !building {
			return nil
		}
		log.Info("msg", "view index building", "database", db, "design_document", stagedID, "progress", task.Progress)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.Channel():
		}
	}
}

func (c *Client) indexerTask(ctx context.Context, db, stagedID string) (activeTask, bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, "_active_tasks", nil, nil)
	if err != nil {
		return activeTask{}, false, err
	}
	if status != http.StatusOK {
		return activeTask{}, false, &RemoteOperationError{Op: "liveDeployView", Database: db, ID: stagedID, StatusCode: status}
	}
	var tasks []activeTask
	if err := json.Unmarshal(body, &tasks); err != nil {
		return activeTask{}, false, err
	}
	for _, task := range tasks {
		if task.Type == "indexer" && task.Database == db && task.DesignDocument == stagedID {
			return task, true, nil
		}
	}
	return activeTask{}, false, nil
}

func wrapDeployErr(err error, db, id string) error {
	if opErr, ok := err.(*RemoteOperationError); ok {
		return opErr
	}
	return &RemoteOperationError{Op: "liveDeployView", Database: db, ID: id, Err: err}
}
