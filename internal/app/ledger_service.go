package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/eventbus"
	"github.com/dokzlo13/garaged/internal/ledger"
)

// LedgerService records bus events and prunes old entries.
type LedgerService struct {
	cfg    *config.Config
	Ledger *ledger.Ledger
}

// NewLedgerService creates a new LedgerService. l is nil when the ledger is disabled.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger) *LedgerService {
	return &LedgerService{
		cfg:    cfg,
		Ledger: l,
	}
}

// Start subscribes the recorder and starts the retention cleanup.
func (s *LedgerService) Start(ctx context.Context, bus *eventbus.Bus) {
	if s.Ledger == nil {
		log.Info().Msg("Event ledger is disabled")
		return
	}

	bus.SubscribeAll(s.record)
	go s.runCleanup(ctx)
}

func (s *LedgerService) record(event eventbus.Event) {
	if err := s.Ledger.Record(event); err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Failed to record event")
	}
}

// runCleanup periodically deletes old ledger entries.
func (s *LedgerService) runCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.RetentionPeriod.Duration()
	interval := s.cfg.Ledger.RetentionInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
