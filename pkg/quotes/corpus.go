// Package quotes loads and samples the static flavor-text corpus merged
// into the relay's system prompt. The corpus is read once at startup from a
// JSON file and is read-only to the relay; an optional watcher reloads it
// when the file changes on disk.
package quotes

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultSampleCount is the number of quotes drawn per prompt when none is
// configured.
const DefaultSampleCount = 3

// Quote is one corpus record. Immutable; never mutated by the relay.
type Quote struct {
	ID   int    `json:"response_id"`
	Type string `json:"response_type"`
	Text string `json:"text"`
}

// Corpus holds the loaded quote set.
//
// Sample and Reload may be called concurrently.
type Corpus struct {
	mu     sync.RWMutex
	quotes []Quote
}

// Load reads the corpus from a JSON file containing an array of quotes.
func Load(path string) (*Corpus, error) {
	c := &Corpus{}
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the corpus contents from path. On error the previous
// contents are kept.
func (c *Corpus) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("quotes: read %s: %w", path, err)
	}

	var loaded []Quote
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("quotes: parse %s: %w", path, err)
	}

	c.mu.Lock()
	c.quotes = loaded
	c.mu.Unlock()

	log.Info().Int("quotes", len(loaded)).Str("path", path).Msg("Quote corpus loaded")
	return nil
}

// Len returns the corpus size.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

// Sample returns count quotes drawn uniformly at random without
// replacement. When count exceeds the corpus size the whole corpus is
// returned in random order. Each call is independent; nothing about the
// selection is cached.
func (c *Corpus) Sample(count int) []Quote {
	if count <= 0 {
		count = DefaultSampleCount
	}

	c.mu.RLock()
	shuffled := make([]Quote, len(c.quotes))
	copy(shuffled, c.quotes)
	c.mu.RUnlock()

	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if count > len(shuffled) {
		count = len(shuffled)
	}
	return shuffled[:count]
}

// Merge prepends caller-supplied quotes to a fresh sample and truncates the
// result to max entries. Supplied quotes win over sampled ones when the
// combined set is over the bound.
func (c *Corpus) Merge(supplied []Quote, sampleCount, max int) []Quote {
	merged := make([]Quote, 0, len(supplied)+sampleCount)
	merged = append(merged, supplied...)
	merged = append(merged, c.Sample(sampleCount)...)
	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}
