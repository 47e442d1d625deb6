// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package runner

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/robfig/cron/v3"

	"github.com/couchpenter/couchpenter/pkg/couchdb"
	"github.com/couchpenter/couchpenter/pkg/log"
	"github.com/couchpenter/couchpenter/pkg/setup"
	"github.com/couchpenter/couchpenter/pkg/util"
)

const envVarPrefix = "COUCHPENTER"

// Config is the CLI configuration. Every field is settable by flag,
// environment variable or config file; precedence is flag, then
// environment, then config file, then default.
type Config struct {
	URL        string
	SetupFile  string
	Dir        string
	Prefix     string
	Interval   time.Duration
	Schedule   string
	ConfigFile string
	LogCfg     log.Config
}

// ParseFlags parses the given arguments into cfg.
func ParseFlags(cfg *Config, args []string) (*Config, error) {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	log.ParseFlags(fs, &cfg.LogCfg)

	fs.StringVar(&cfg.URL, "url", couchdb.DefaultURL, "CouchDB server URL in the form scheme://[user:pass@]host:port.")
	fs.StringVar(&cfg.SetupFile, "setup-file", setup.DefaultSetupFile, "Path of the setup file mapping database names to document lists.")
	fs.StringVar(&cfg.Dir, "dir", ".", "Base directory for resolving document file and provider references.")
	fs.StringVar(&cfg.Prefix, "prefix", "", "String prepended to every database name in the setup.")
	fs.DurationVar(&cfg.Interval, "interval", couchdb.DefaultInterval, "Poll interval for live view deploy progress tracking.")
	fs.StringVar(&cfg.Schedule, "schedule", "", "Cron expression for recurring view warm-up. When set, warm-views keeps running until interrupted.")
	fs.StringVar(&cfg.ConfigFile, "config", "", "JSON configuration file path.")

	if err := util.ParseEnv(envVarPrefix, fs); err != nil {
		return nil, fmt.Errorf("error parsing env variables: %w", err)
	}

	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithAllowMissingConfigFile(true),
	); err != nil {
		return nil, fmt.Errorf("configuration error when parsing flags: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server URL %q: scheme must be http or https", cfg.URL)
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
	}
	return nil
}

// SplitArgs separates the command word from the flag arguments: the
// command is the first argument, flags follow it.
func SplitArgs(args []string) (command string, flags []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}
