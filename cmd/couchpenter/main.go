// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/couchpenter/couchpenter/pkg/log"
	"github.com/couchpenter/couchpenter/pkg/runner"
	"github.com/couchpenter/couchpenter/pkg/version"
)

func main() {
	if shouldProceed := runner.ParseArgs(os.Args[1:]); !shouldProceed {
		os.Exit(0)
	}

	command, args := runner.SplitArgs(os.Args[1:])
	if command == "" {
		fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\ncommands: %s\n",
			os.Args[0], strings.Join(runner.Commands(), ", "))
		os.Exit(1)
	}

	cfg := &runner.Config{}
	cfg, err := runner.ParseFlags(cfg, args)
	if err != nil {
		fmt.Println("Version: ", version.Couchpenter, "Commit Hash: ", version.CommitHash)
		fmt.Println("Fatal error: cannot parse flags: ", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.LogCfg); err != nil {
		fmt.Println("Version: ", version.Couchpenter, "Commit Hash: ", version.CommitHash)
		fmt.Println("Fatal error: cannot start logger: ", err)
		os.Exit(1)
	}
	if err := runner.Run(cfg, command); err != nil {
		os.Exit(1)
	}
}
