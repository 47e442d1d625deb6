// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package version

var (
	// Couchpenter is the version reported by the CLI and sent in the
	// User-Agent header of store requests.
	Couchpenter = "0.3.0"
	CommitHash  = ""
)
