// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package setup

import (
	"fmt"
	"os"
)

// sample is the scaffold written by WriteSample. It shows the three
// supported document specification forms: an inline object, a data file
// reference and a named provider reference.
const sample = `{
  "db1": [
    { "_id": "doc1", "key": "value" },
    "data/doc2.json",
    "providers/doc3"
  ],
  "db2": []
}
`

// WriteSample writes a sample setup file to path. It refuses to replace
// an existing file.
func WriteSample(path string) error {
	if path == "" {
		path = DefaultSetupFile
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("setup file %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("writing sample setup file: %w", err)
	}
	return nil
}
