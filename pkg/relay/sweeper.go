package relay

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solenne/hearth/pkg/memory"
	"github.com/solenne/hearth/pkg/ratelimit"
)

// DefaultSweepInterval is how often idle state is evicted when no interval
// is configured.
const DefaultSweepInterval = time.Hour

// Sweeper periodically evicts idle rate-limit buckets and idle sessions so
// one-off visitors do not accumulate in memory.
type Sweeper struct {
	limiter  *ratelimit.Limiter
	memory   *memory.Store
	interval time.Duration
	window   time.Duration
	stopCh   chan struct{}
	running  bool
}

// NewSweeper creates a sweeper over the limiter and memory store. window is
// the rate-limit window; buckets idle longer than it are dropped. Sessions
// are dropped after a full interval without activity.
func NewSweeper(limiter *ratelimit.Limiter, mem *memory.Store, interval, window time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		limiter:  limiter,
		memory:   mem,
		interval: interval,
		window:   window,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweep loop
func (s *Sweeper) Start() error {
	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	s.running = true
	go s.run()

	log.Info().
		Dur("interval", s.interval).
		Msg("Idle sweeper started")

	return nil
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() error {
	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}

	close(s.stopCh)
	s.running = false

	log.Info().Msg("Idle sweeper stopped")

	return nil
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepNow()
		case <-s.stopCh:
			return
		}
	}
}

// SweepNow immediately evicts idle state and returns how many buckets and
// sessions were removed.
func (s *Sweeper) SweepNow() (buckets, sessions int) {
	if s.limiter != nil {
		buckets = s.limiter.SweepIdle(s.window)
	}
	if s.memory != nil {
		sessions = s.memory.SweepIdle(s.interval)
	}
	return buckets, sessions
}

// IsRunning returns whether the sweeper is running
func (s *Sweeper) IsRunning() bool {
	return s.running
}
