package speaking

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically persists request expiry. Reads are correct without
// it; the sweep only keeps stored statuses tidy.
type Sweeper struct {
	Ledger   *RequestLedger
	Interval time.Duration
	Logger   zerolog.Logger
}

func NewSweeper(ledger *RequestLedger, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{Ledger: ledger, Interval: interval, Logger: logger}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.Logger.Info().Dur("interval", s.Interval).Msg("request sweeper started")
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info().Msg("request sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.Ledger.Sweep(ctx)
			if err != nil {
				s.Logger.Error().Err(err).Msg("request sweep failed")
				continue
			}
			if n > 0 {
				s.Logger.Info().Int64("expired", n).Msg("expired pending requests")
			}
		}
	}
}
