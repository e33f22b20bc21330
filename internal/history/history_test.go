package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, "assistant", "disk is filling up"))
	require.NoError(t, s.AppendMessage(ctx, "assistant", "backup job is stuck"))

	msgs, err := s.RecentMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Newest first.
	assert.Equal(t, "backup job is stuck", msgs[0].Text)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.False(t, msgs[0].CreatedAt.IsZero())
}

func TestRecentMessagesLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, "assistant", "msg"))
	}
	msgs, err := s.RecentMessages(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestFacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetFact(ctx, "last_alert")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetFact(ctx, "last_alert", "cpu spike"))
	val, ok, err := s.GetFact(ctx, "last_alert")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cpu spike", val)

	// Upsert replaces.
	require.NoError(t, s.SetFact(ctx, "last_alert", "disk full"))
	val, _, err = s.GetFact(ctx, "last_alert")
	require.NoError(t, err)
	assert.Equal(t, "disk full", val)
}
