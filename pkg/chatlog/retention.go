package chatlog

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultRetentionAge is how long chat records are kept.
	DefaultRetentionAge = 90 * 24 * time.Hour

	// DefaultRetentionSchedule runs the sweep nightly.
	DefaultRetentionSchedule = "0 3 * * *"
)

// Retention periodically deletes expired chat records and prunes oversized
// sessions on a cron schedule. It acts only on durable storage; in-memory
// session state has its own idle sweeps.
type Retention struct {
	store       *Store
	maxAge      time.Duration
	maxMessages int
	schedule    string
	cron        *cron.Cron
	logger      zerolog.Logger
}

// NewRetention configures a retention job for store. Zero values fall back
// to the defaults.
func NewRetention(store *Store, maxAge time.Duration, maxMessages int, schedule string, logger zerolog.Logger) *Retention {
	if maxAge <= 0 {
		maxAge = DefaultRetentionAge
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	return &Retention{
		store:       store,
		maxAge:      maxAge,
		maxMessages: maxMessages,
		schedule:    schedule,
		logger:      logger,
	}
}

// Start schedules the sweep. Returns an error when the schedule expression
// does not parse.
func (r *Retention) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("Chat log retention sweep failed")
		}
	}); err != nil {
		return err
	}

	c.Start()
	r.cron = c
	r.logger.Info().
		Str("schedule", r.schedule).
		Dur("max_age", r.maxAge).
		Int("max_messages", r.maxMessages).
		Msg("Chat log retention started")
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (r *Retention) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce performs one sweep immediately.
func (r *Retention) RunOnce(ctx context.Context) error {
	deleted, err := r.store.DeleteOlderThan(ctx, time.Now().Add(-r.maxAge))
	if err != nil {
		return err
	}

	pruned, err := r.store.PruneSessions(ctx, r.maxMessages)
	if err != nil {
		return err
	}

	if deleted > 0 || pruned > 0 {
		r.logger.Info().
			Int64("records_deleted", deleted).
			Int64("messages_pruned", pruned).
			Msg("Chat log retention sweep completed")
	}
	return nil
}
