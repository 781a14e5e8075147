package chatlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "chatlog.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AppendHistory(t *testing.T) {
	t.Run("should store and return messages in order", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		require.NoError(t, store.Append(ctx, "s1", "user", "hello"))
		require.NoError(t, store.Append(ctx, "s1", "assistant", "hi there"))

		msgs, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "user", msgs[0].Role)
		assert.Equal(t, "hello", msgs[0].Text)
		assert.Equal(t, "assistant", msgs[1].Role)
	})

	t.Run("should keep sessions separate", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		require.NoError(t, store.Append(ctx, "s1", "user", "for s1"))
		require.NoError(t, store.Append(ctx, "s2", "user", "for s2"))

		msgs, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "for s1", msgs[0].Text)
	})

	t.Run("should return the most recent messages within the limit", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, store.Append(ctx, "s1", "user", string(rune('a'+i))))
		}

		msgs, err := store.History(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "d", msgs[0].Text)
		assert.Equal(t, "e", msgs[1].Text)
	})

	t.Run("should return empty history for unknown sessions", func(t *testing.T) {
		store := openTestStore(t)

		msgs, err := store.History(context.Background(), "ghost", 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestStore_Notify(t *testing.T) {
	t.Run("should record an exchange", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		store.Notify(ctx, "s1", "question", "answer")

		msgs, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "question", msgs[0].Text)
		assert.Equal(t, "answer", msgs[1].Text)
	})

	t.Run("should swallow write failures", func(t *testing.T) {
		store := openTestStore(t)
		require.NoError(t, store.Close())

		// Must not panic or surface an error.
		store.Notify(context.Background(), "s1", "question", "answer")
	})
}

func TestStore_Retention(t *testing.T) {
	t.Run("DeleteOlderThan should drop expired records", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		require.NoError(t, store.Append(ctx, "old", "user", "ancient"))
		require.NoError(t, store.Append(ctx, "fresh", "user", "new"))

		// Future cutoff expires everything created so far.
		deleted, err := store.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		msgs, err := store.History(ctx, "old", 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("PruneSessions should keep the newest messages", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		for i := 0; i < 6; i++ {
			require.NoError(t, store.Append(ctx, "s1", "user", string(rune('a'+i))))
		}

		pruned, err := store.PruneSessions(ctx, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 4, pruned)

		msgs, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "e", msgs[0].Text)
		assert.Equal(t, "f", msgs[1].Text)
	})

	t.Run("RunOnce should sweep both dimensions", func(t *testing.T) {
		store := openTestStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, store.Append(ctx, "s1", "user", "msg"))
		}

		retention := NewRetention(store, time.Hour, 3, "", zerolog.Nop())
		require.NoError(t, retention.RunOnce(ctx))

		msgs, err := store.History(ctx, "s1", 10)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})
}
