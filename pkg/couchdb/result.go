// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package couchdb

import "fmt"

// Result is one per-operation outcome record. Tasks return one Result per
// database or per document they touched; callers aggregate them in order.
type Result struct {
	Database string `json:"database"`
	ID       string `json:"id,omitempty"`
	Action   string `json:"action"`
	Message  string `json:"message"`
}

func (r Result) String() string {
	if r.ID == "" {
		return fmt.Sprintf("%s %s: %s", r.Action, r.Database, r.Message)
	}
	return fmt.Sprintf("%s %s/%s: %s", r.Action, r.Database, r.ID, r.Message)
}

// RemoteOperationError reports a failed store call with enough context to
// identify the offending task, database and document.
type RemoteOperationError struct {
	Op         string
	Database   string
	ID         string
	StatusCode int
	Err        error
}

func (e *RemoteOperationError) Error() string {
	target := e.Database
	if e.ID != "" {
		target += "/" + e.ID
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Op, target, e.StatusCode)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}
