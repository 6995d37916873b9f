package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemoryGetSet(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", []byte("v1"), 0))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	// Overwrite.
	require.NoError(t, m.Set(ctx, "k", []byte("v2"), 0))
	val, _ = m.Get(ctx, "k")
	assert.Equal(t, []byte("v2"), val)
}

func TestMemoryGetCopiesValue(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("abc"), 0))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	val[0] = 'x'

	again, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	m.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err := m.Get(ctx, "k")
	assert.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySetNX(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "k", []byte("first"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "k", []byte("second"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	val, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("first"), val)
}

func TestMemorySetNXReclaimsExpired(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	ok, _ := m.SetNX(ctx, "k", []byte("first"), time.Second)
	require.True(t, ok)

	m.now = func() time.Time { return base.Add(2 * time.Second) }
	ok, err := m.SetNX(ctx, "k", []byte("second"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGetDel(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "ticket", []byte("once"), 0))

	val, err := m.GetDel(ctx, "ticket")
	require.NoError(t, err)
	assert.Equal(t, []byte("once"), val)

	_, err = m.GetDel(ctx, "ticket")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKeysByPrefix(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "job:1", []byte("a"), 0))
	require.NoError(t, m.Set(ctx, "job:2", []byte("b"), 0))
	require.NoError(t, m.Set(ctx, "session:1", []byte("c"), 0))

	keys, err := m.Keys(ctx, "job:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"job:1", "job:2"}, keys)
}

func TestMemoryKeysSkipsExpired(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	require.NoError(t, m.Set(ctx, "job:live", []byte("a"), 0))
	require.NoError(t, m.Set(ctx, "job:dead", []byte("b"), time.Second))

	m.now = func() time.Time { return base.Add(time.Minute) }
	keys, err := m.Keys(ctx, "job:")
	require.NoError(t, err)
	assert.Equal(t, []string{"job:live"}, keys)
}

func TestMemoryExpire(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Expire(ctx, "missing", time.Minute), ErrNotFound)

	base := time.Now()
	m.now = func() time.Time { return base }
	require.NoError(t, m.Set(ctx, "session", []byte("s"), time.Minute))

	// Sliding refresh keeps the key alive past its original expiry.
	m.now = func() time.Time { return base.Add(50 * time.Second) }
	require.NoError(t, m.Expire(ctx, "session", time.Minute))

	m.now = func() time.Time { return base.Add(100 * time.Second) }
	_, err := m.Get(ctx, "session")
	assert.NoError(t, err)
}

func TestMemoryDeleteAndClose(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, m.Delete(ctx, "k"))
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, m.Ping(ctx))
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}
