// Package memory keeps the per-session rolling conversation window used as
// context for upstream completion calls. Each session holds at most k
// exchanges (a user turn paired with an assistant turn); appending beyond
// that evicts the oldest exchange first.
package memory

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solenne/hearth/internal/observability"
)

// DefaultExchanges is the number of exchanges retained per session when no
// explicit capacity is configured.
const DefaultExchanges = 6

// Turn is a single message in a conversation. Immutable once appended.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Roles used in conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type session struct {
	turns      []Turn
	lastActive time.Time
}

// Store holds the rolling window for every session seen by the process.
// Sessions are created lazily on first reference and live until swept;
// there is no persistence, the durable chat log is a separate collaborator.
//
// Store is safe for concurrent use from multiple goroutines.
type Store struct {
	mu        sync.Mutex
	exchanges int
	sessions  map[string]*session
}

// NewStore returns a Store that keeps at most exchanges user/assistant
// pairs per session. Non-positive values fall back to DefaultExchanges.
func NewStore(exchanges int) *Store {
	if exchanges <= 0 {
		exchanges = DefaultExchanges
	}
	return &Store{
		exchanges: exchanges,
		sessions:  make(map[string]*session),
	}
}

// History returns the session's turns in chronological order (oldest
// first). The session is created empty on first access. The returned slice
// is a copy; callers may not mutate stored state through it.
func (s *Store) History(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(sessionID)
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append records one completed exchange and trims the window from the
// front so at most the configured number of exchanges remain.
func (s *Store) Append(sessionID string, user, assistant Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if user.Timestamp.IsZero() {
		user.Timestamp = now
	}
	if assistant.Timestamp.IsZero() {
		assistant.Timestamp = now
	}

	sess := s.get(sessionID)
	sess.turns = append(sess.turns, user, assistant)
	if max := 2 * s.exchanges; len(sess.turns) > max {
		sess.turns = sess.turns[len(sess.turns)-max:]
	}
	sess.lastActive = now
}

// Exchanges returns how many complete exchanges the session currently holds.
func (s *Store) Exchanges(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(sess.turns) / 2
}

// Sessions returns the number of sessions currently tracked.
func (s *Store) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SweepIdle drops sessions that have not been appended to for idleFor and
// returns how many were removed. History reads do not count as activity;
// only completed exchanges keep a session alive.
func (s *Store) SweepIdle(idleFor time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-idleFor)
	removed := 0
	for id, sess := range s.sessions {
		if !sess.lastActive.After(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	observability.SetActiveSessions(len(s.sessions))

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Swept idle sessions")
	}
	return removed
}

// get returns the session, creating it when absent. Caller holds s.mu.
func (s *Store) get(sessionID string) *session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{lastActive: time.Now()}
		s.sessions[sessionID] = sess
		observability.SetActiveSessions(len(s.sessions))
	}
	return sess
}
