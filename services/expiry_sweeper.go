package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpirySweeper runs ExpireOverdue on a fixed interval until its context ends
type ExpirySweeper struct {
	machine  *OrderStateMachine
	interval time.Duration
	logger   zerolog.Logger
}

// NewExpirySweeper creates a sweeper. A non-positive interval defaults to one minute.
func NewExpirySweeper(machine *OrderStateMachine, interval time.Duration, logger zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		machine:  machine,
		interval: interval,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Run sweeps once immediately and then on every tick. It returns nil when
// ctx is cancelled; a failed sweep is logged and retried on the next tick.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("Expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce expires overdue orders and returns how many were cancelled
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	n, err := s.machine.ExpireOverdue(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Int("expired", n).Msg("Expiry sweep failed")
	}
	return n
}
