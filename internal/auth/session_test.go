package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionMode(t *testing.T) {
	m, err := ParseSessionMode("")
	require.NoError(t, err)
	assert.Equal(t, SessionSingle, m)

	m, err = ParseSessionMode("MULTI")
	require.NoError(t, err)
	assert.Equal(t, SessionMulti, m)

	_, err = ParseSessionMode("sticky")
	assert.Error(t, err)
}

func TestMemorySessionStoreSingle(t *testing.T) {
	clock := newTestClock()
	store := NewMemorySessionStore(SessionSingle, clock.Now)
	exp := testEpoch.Add(time.Hour)

	require.NoError(t, store.Bind(context.Background(), "user1@api.com", "tok-1", exp))
	require.NoError(t, store.Bind(context.Background(), "user2@api.com", "tok-2", exp))

	got, err := store.Lookup(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "user1@api.com", got)

	require.NoError(t, store.Bind(context.Background(), "user1@api.com", "tok-1b", exp))
	_, err = store.Lookup(context.Background(), "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err = store.Lookup(context.Background(), "tok-1b")
	require.NoError(t, err)
	assert.Equal(t, "user1@api.com", got)

	got, err = store.Lookup(context.Background(), "tok-2")
	require.NoError(t, err)
	assert.Equal(t, "user2@api.com", got)
}

func TestMemorySessionStoreMulti(t *testing.T) {
	clock := newTestClock()
	store := NewMemorySessionStore(SessionMulti, clock.Now)

	require.NoError(t, store.Bind(context.Background(), "user1@api.com", "old", testEpoch.Add(time.Minute)))
	require.NoError(t, store.Bind(context.Background(), "user1@api.com", "new", testEpoch.Add(time.Hour)))

	for _, tok := range []string{"old", "new"} {
		got, err := store.Lookup(context.Background(), tok)
		require.NoError(t, err, tok)
		assert.Equal(t, "user1@api.com", got)
	}

	clock.Advance(2 * time.Minute)
	_, err := store.Lookup(context.Background(), "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Bind(context.Background(), "user1@api.com", "newer", testEpoch.Add(2*time.Hour)))
	assert.NotContains(t, store.byToken, "old", "expired sessions are pruned on bind")
	assert.Len(t, store.byUser["user1@api.com"], 2)
}
