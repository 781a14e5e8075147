package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(n int) (Turn, Turn) {
	return Turn{Role: RoleUser, Content: fmt.Sprintf("question %d", n)},
		Turn{Role: RoleAssistant, Content: fmt.Sprintf("answer %d", n)}
}

func TestStore_Append(t *testing.T) {
	t.Run("should retain min(n, k) exchanges", func(t *testing.T) {
		store := NewStore(6)

		for n := 1; n <= 4; n++ {
			u, a := exchange(n)
			store.Append("s1", u, a)
		}
		assert.Equal(t, 4, store.Exchanges("s1"))

		for n := 5; n <= 9; n++ {
			u, a := exchange(n)
			store.Append("s1", u, a)
		}
		assert.Equal(t, 6, store.Exchanges("s1"))
	})

	t.Run("should evict the oldest exchange first", func(t *testing.T) {
		store := NewStore(6)

		for n := 1; n <= 7; n++ {
			u, a := exchange(n)
			store.Append("s1", u, a)
		}

		history := store.History("s1")
		require.Len(t, history, 12)
		assert.Equal(t, "question 2", history[0].Content)
		assert.Equal(t, "answer 7", history[11].Content)
	})

	t.Run("should return history in chronological order", func(t *testing.T) {
		store := NewStore(3)

		u1, a1 := exchange(1)
		u2, a2 := exchange(2)
		store.Append("s1", u1, a1)
		store.Append("s1", u2, a2)

		history := store.History("s1")
		require.Len(t, history, 4)
		assert.Equal(t, []string{"question 1", "answer 1", "question 2", "answer 2"},
			[]string{history[0].Content, history[1].Content, history[2].Content, history[3].Content})
	})

	t.Run("should default zero timestamps", func(t *testing.T) {
		store := NewStore(3)

		store.Append("s1", Turn{Role: RoleUser, Content: "hi"}, Turn{Role: RoleAssistant, Content: "hello"})
		history := store.History("s1")
		assert.False(t, history[0].Timestamp.IsZero())
		assert.False(t, history[1].Timestamp.IsZero())
	})
}

func TestStore_History(t *testing.T) {
	t.Run("should create sessions lazily", func(t *testing.T) {
		store := NewStore(6)

		assert.Empty(t, store.History("new-session"))
		assert.Equal(t, 1, store.Sessions())
	})

	t.Run("should return a copy", func(t *testing.T) {
		store := NewStore(6)
		u, a := exchange(1)
		store.Append("s1", u, a)

		history := store.History("s1")
		history[0].Content = "mutated"

		assert.Equal(t, "question 1", store.History("s1")[0].Content)
	})

	t.Run("should keep sessions independent", func(t *testing.T) {
		store := NewStore(6)
		u, a := exchange(1)
		store.Append("s1", u, a)

		assert.Empty(t, store.History("s2"))
		assert.Len(t, store.History("s1"), 2)
	})
}

func TestStore_SweepIdle(t *testing.T) {
	store := NewStore(6)

	u, a := exchange(1)
	store.Append("stale", u, a)
	time.Sleep(20 * time.Millisecond)
	store.Append("active", u, a)

	removed := store.SweepIdle(10 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Sessions())
	assert.Len(t, store.History("active"), 2)
}

func TestNewStore_Defaults(t *testing.T) {
	store := NewStore(0)
	assert.Equal(t, DefaultExchanges, store.exchanges)
}
