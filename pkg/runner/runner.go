// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

// Package runner wires the CLI configuration to the couchpenter facade
// and executes one named command.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/couchpenter/couchpenter/pkg/couchdb"
	"github.com/couchpenter/couchpenter/pkg/couchpenter"
	"github.com/couchpenter/couchpenter/pkg/log"
	"github.com/couchpenter/couchpenter/pkg/version"
)

type operation func(*couchpenter.Couchpenter, context.Context) ([]couchdb.Result, error)

// commands maps CLI command words to facade operations.
var commands = map[string]operation{
	"setup":               (*couchpenter.Couchpenter).SetUp,
	"setup-db":            (*couchpenter.Couchpenter).SetUpDatabases,
	"setup-doc":           (*couchpenter.Couchpenter).SetUpDocuments,
	"setup-doc-overwrite": (*couchpenter.Couchpenter).SetUpDocumentsOverwrite,
	"teardown":            (*couchpenter.Couchpenter).TearDown,
	"teardown-db":         (*couchpenter.Couchpenter).TearDownDatabases,
	"teardown-doc":        (*couchpenter.Couchpenter).TearDownDocuments,
	"reset":               (*couchpenter.Couchpenter).Reset,
	"reset-db":            (*couchpenter.Couchpenter).ResetDatabases,
	"reset-doc":           (*couchpenter.Couchpenter).ResetDocuments,
	"clean":               (*couchpenter.Couchpenter).Clean,
	"clean-db":            (*couchpenter.Couchpenter).CleanDatabases,
	"warm-views":          (*couchpenter.Couchpenter).WarmViews,
	"live-deploy-view":    (*couchpenter.Couchpenter).LiveDeployView,
}

// Commands returns the known command words, sorted, for usage output.
func Commands() []string {
	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "init")
	sort.Strings(names)
	return names
}

// Run executes one command with the given configuration.
func Run(cfg *Config, command string) error {
	log.Info("msg", "couchpenter", "version", version.Couchpenter, "commit_hash", version.CommitHash, "url", cfg.URL, "command", command)

	if command == "init" {
		if err := couchpenter.InitSetupFile(cfg.SetupFile); err != nil {
			log.Error("msg", "could not write sample setup file", "err", err.Error())
			return err
		}
		log.Info("msg", "sample setup file written", "path", cfg.SetupFile)
		return nil
	}

	op, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown command %q, expected one of %v", command, Commands())
	}

	cp, err := couchpenter.New(couchpenter.Options{
		URL:       cfg.URL,
		SetupFile: cfg.SetupFile,
		Dir:       cfg.Dir,
		Prefix:    cfg.Prefix,
		Interval:  cfg.Interval,
	})
	if err != nil {
		return err
	}

	if command == "warm-views" && cfg.Schedule != "" {
		return runScheduled(cp, cfg.Schedule)
	}

	results, err := op(cp, context.Background())
	if err != nil {
		log.Error("msg", "command failed", "command", command, "err", err.Error())
		return err
	}
	for _, r := range results {
		log.Info("msg", r.String(), "database", r.Database)
	}
	log.Info("msg", "command finished", "command", command, "operations", len(results))
	return nil
}

// runScheduled keeps warming views on the cron schedule until the
// process is interrupted.
func runScheduled(cp *couchpenter.Couchpenter, schedule string) error {
	stop, err := cp.ScheduleWarmViews(schedule)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("msg", "stopping scheduled view warm-up", "signal", s.String())
	stop()
	return nil
}
