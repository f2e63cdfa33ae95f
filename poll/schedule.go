package poll

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule runs the poller on a cron spec until ctx is done. A tick that
// arrives while a run is still in progress is skipped. Failed runs are logged
// and do not stop the schedule.
func (m *Monitor) Schedule(ctx context.Context, spec, query string) error {
	logger := cronLogger{logger: m.logger}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(spec, func() {
		if _, err := m.Run(ctx, query); err != nil {
			m.logger.Error("Scheduled poll failed", "query", query, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	m.logger.Info("Poll schedule started", "schedule", spec, "query", query)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	m.logger.Info("Poll schedule stopped", "reason", ctx.Err())
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
