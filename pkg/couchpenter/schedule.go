// This file and its contents are licensed under the Apache License 2.0.
// Please see the included NOTICE for copyright information and
// LICENSE for a copy of the license.

package couchpenter

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/couchpenter/couchpenter/pkg/log"
)

// ScheduleWarmViews runs WarmViews on a cron schedule until the returned
// stop function is called. A firing that comes due while the previous
// warm-up is still in flight is skipped; runs never overlap.
func (c *Couchpenter) ScheduleWarmViews(spec string) (stop func(), err error) {
	cr := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	_, err = cr.AddFunc(spec, func() {
		results, err := c.WarmViews(context.Background())
		if err != nil {
			log.Error("msg", "scheduled view warm-up failed", "err", err.Error())
			return
		}
		log.Info("msg", "scheduled view warm-up finished", "views", len(results))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid warm-up schedule %q: %w", spec, err)
	}

	cr.Start()
	log.Info("msg", "view warm-up scheduled", "schedule", spec)
	return func() { <-cr.Stop().Done() }, nil
}

// cronLogger adapts the application logger to the cron logging interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error(append([]interface{}{"msg", msg, "err", err.Error()}, keysAndValues...)...)
}
