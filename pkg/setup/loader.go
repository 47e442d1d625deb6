// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package setup

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultSetupFile is the setup file name used when none is configured.
const DefaultSetupFile = "couchpenter.json"

// ConfigError reports a setup file that is missing, unreadable or not
// valid under the setup data model.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("setup file %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Loader reads a setup description and applies the configured database
// name prefix.
type Loader struct {
	SetupFile string
	Prefix    string
}

// Load returns the setup to run against. If explicit is non-nil a copy
// of it is used and the setup file is never read; otherwise the setup
// file is read and parsed. The name prefix is applied before any task
// runs. Loading the same explicit setup repeatedly never stacks the
// prefix onto the caller's copy.
func (l Loader) Load(explicit *Setup) (*Setup, error) {
	var s *Setup
	if explicit != nil {
		s = explicit.Clone()
	} else {
		path := l.SetupFile
		if path == "" {
			path = DefaultSetupFile
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		s = New()
		if err := json.Unmarshal(data, s); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
	}
	s.ApplyPrefix(l.Prefix)
	return s, nil
}
