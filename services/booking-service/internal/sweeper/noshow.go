package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the engine operation run on every tick.
type Sweeper interface {
	SweepNoShows(ctx context.Context) (int, error)
}

// NoShowSweeper periodically marks missed appointments as NO_SHOW. Ticks that
// arrive while a sweep is still running are skipped.
type NoShowSweeper struct {
	cron    *cron.Cron
	target  Sweeper
	logger  *slog.Logger
	timeout time.Duration
	ctx     context.Context
}

// NewNoShowSweeper parses spec ("@every 5m", "*/10 * * * *").
func NewNoShowSweeper(spec string, target Sweeper, logger *slog.Logger, timeout time.Duration) (*NoShowSweeper, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &NoShowSweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:  target,
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid no-show sweep spec %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for an
// in-flight sweep to finish.
func (s *NoShowSweeper) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("no-show sweeper started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("no-show sweeper stopped")
}

func (s *NoShowSweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	n, err := s.target.SweepNoShows(ctx)
	if err != nil {
		s.logger.Error("no-show sweep failed", "err", err, "marked", n)
		return n
	}
	if n > 0 {
		s.logger.Info("no-show sweep completed", "marked", n, "duration_ms", time.Since(start).Milliseconds())
	}
	return n
}
