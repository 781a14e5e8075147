package quotes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusFile(t *testing.T, quotes string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quotes.json")
	require.NoError(t, os.WriteFile(path, []byte(quotes), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should load a JSON corpus", func(t *testing.T) {
		path := writeCorpusFile(t, `[
			{"response_id": 1, "response_type": "encouragement", "text": "You can do it!"},
			{"response_id": 2, "response_type": "memory", "text": "Remember the beach trip?"}
		]`)

		corpus, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, corpus.Len())
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := Load("/does/not/exist.json")
		assert.Error(t, err)
	})

	t.Run("should fail on malformed JSON", func(t *testing.T) {
		path := writeCorpusFile(t, `{"not": "an array"}`)
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestCorpus_Reload(t *testing.T) {
	t.Run("should keep previous corpus on error", func(t *testing.T) {
		path := writeCorpusFile(t, `[{"response_id": 1, "response_type": "x", "text": "one"}]`)
		corpus, err := Load(path)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
		assert.Error(t, corpus.Reload(path))
		assert.Equal(t, 1, corpus.Len())
	})
}

func TestCorpus_Sample(t *testing.T) {
	path := writeCorpusFile(t, `[
		{"response_id": 1, "response_type": "a", "text": "one"},
		{"response_id": 2, "response_type": "b", "text": "two"},
		{"response_id": 3, "response_type": "c", "text": "three"},
		{"response_id": 4, "response_type": "d", "text": "four"},
		{"response_id": 5, "response_type": "e", "text": "five"}
	]`)
	corpus, err := Load(path)
	require.NoError(t, err)

	t.Run("should return the requested count", func(t *testing.T) {
		assert.Len(t, corpus.Sample(3), 3)
	})

	t.Run("should draw without replacement", func(t *testing.T) {
		sample := corpus.Sample(5)
		seen := map[int]bool{}
		for _, q := range sample {
			assert.False(t, seen[q.ID], "quote %d drawn twice", q.ID)
			seen[q.ID] = true
		}
	})

	t.Run("should cap at the corpus size", func(t *testing.T) {
		assert.Len(t, corpus.Sample(50), 5)
	})

	t.Run("should default a non-positive count", func(t *testing.T) {
		assert.Len(t, corpus.Sample(0), DefaultSampleCount)
	})
}

func TestCorpus_Merge(t *testing.T) {
	path := writeCorpusFile(t, `[
		{"response_id": 1, "response_type": "a", "text": "one"},
		{"response_id": 2, "response_type": "b", "text": "two"},
		{"response_id": 3, "response_type": "c", "text": "three"}
	]`)
	corpus, err := Load(path)
	require.NoError(t, err)

	t.Run("should keep supplied quotes first", func(t *testing.T) {
		supplied := []Quote{{ID: 99, Type: "caller", Text: "pinned"}}

		merged := corpus.Merge(supplied, 3, 4)
		require.NotEmpty(t, merged)
		assert.Equal(t, 99, merged[0].ID)
		assert.Len(t, merged, 4)
	})

	t.Run("should truncate to the bound", func(t *testing.T) {
		supplied := []Quote{
			{ID: 90, Text: "a"}, {ID: 91, Text: "b"},
			{ID: 92, Text: "c"}, {ID: 93, Text: "d"},
		}

		merged := corpus.Merge(supplied, 3, 4)
		assert.Len(t, merged, 4)
		for i, q := range merged {
			assert.Equal(t, 90+i, q.ID)
		}
	})
}

func TestWatcher(t *testing.T) {
	path := writeCorpusFile(t, `[{"response_id": 1, "response_type": "a", "text": "one"}]`)
	corpus, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(corpus, path, zerolog.Nop())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`[
		{"response_id": 1, "response_type": "a", "text": "one"},
		{"response_id": 2, "response_type": "b", "text": "two"}
	]`), 0600))

	assert.Eventually(t, func() bool {
		return corpus.Len() == 2
	}, 3*time.Second, 50*time.Millisecond)
}
