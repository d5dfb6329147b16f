package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedProfile struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	s := miniredis.RunT(t)
	InitRedis(s.Addr())
	require.NotNil(t, GetClient())
	t.Cleanup(func() { client = nil })
	return s
}

func TestGetSetJSON(t *testing.T) {
	withMiniredis(t)
	ctx := context.Background()

	var missing cachedProfile
	found, err := GetJSON(ctx, ProfileKey(1), &missing)
	require.NoError(t, err)
	assert.False(t, found)

	stored := cachedProfile{ID: 1, Name: "Jo"}
	require.NoError(t, SetJSON(ctx, ProfileKey(1), stored, ProfileTTL))

	var got cachedProfile
	found, err = GetJSON(ctx, ProfileKey(1), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, stored, got)
}

func TestAside(t *testing.T) {
	withMiniredis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedProfile) func() error {
		return func() error {
			calls++
			*dest = cachedProfile{ID: 7, Name: "Sam"}
			return nil
		}
	}

	var first cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey(7), &first, time.Minute, fetch(&first)))
	assert.Equal(t, 1, calls)

	// Second read is served from the cache without calling fetch.
	var second cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey(7), &second, time.Minute, fetch(&second)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestInvalidateProfile(t *testing.T) {
	withMiniredis(t)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, ProfileKey(3), cachedProfile{ID: 3}, time.Minute))
	InvalidateProfile(ctx, 3)

	var got cachedProfile
	found, err := GetJSON(ctx, ProfileKey(3), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAsideExpiry(t *testing.T) {
	s := withMiniredis(t)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, ProfileKey(9), cachedProfile{ID: 9}, time.Minute))
	s.FastForward(2 * time.Minute)

	var got cachedProfile
	found, err := GetJSON(ctx, ProfileKey(9), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNilClientIsNoop(t *testing.T) {
	client = nil
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, "k", 1, time.Minute))
	var v int
	found, err := GetJSON(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)

	// Aside degrades to a plain fetch.
	var out cachedProfile
	err = Aside(ctx, "k", &out, time.Minute, func() error {
		out = cachedProfile{ID: 2}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint(2), out.ID)
}
