package alias

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/events"
	"github.com/getmasq/masq/internal/logging"
)

// Sweeper periodically deletes expired alias rows. Lookups already skip
// expired rows, so the sweep only reclaims space and frees keys for
// reuse; correctness does not depend on it running.
type Sweeper struct {
	db       *sql.DB
	interval time.Duration
	bus      *events.Bus
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper that runs every interval. An interval of
// zero or less disables it; Start and Stop stay safe to call.
func NewSweeper(d *sql.DB, interval time.Duration, bus *events.Bus, logger *zap.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		db:       d,
		interval: interval,
		bus:      bus,
		logger:   logger.With(logging.Component("sweeper")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop in the background.
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		s.logger.Info("alias sweeper disabled")
		return
	}
	s.wg.Add(1)
	go s.run()
	s.logger.Info("alias sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("alias sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	count, err := Cleanup(s.ctx, s.db)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("alias sweep failed", zap.Error(err))
		return
	}
	if count == 0 {
		return
	}

	s.logger.Info("swept expired aliases", logging.Count(count))
	if s.bus != nil {
		s.bus.Publish(events.AliasSwept(count))
	}
}
