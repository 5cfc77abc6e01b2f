package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
)

func TestFileStoreLifecycle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	store := NewFileStore(path, "")

	_, err := store.UserID(t.Context())
	require.ErrorIs(t, err, ErrNoIdentity)
	assert.True(t, errors.IsCategory(err, errors.CategoryIdentity))

	require.NoError(t, store.Save(" 42 "))
	id, err := store.UserID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "user_id: \"42\"\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty session file is removed")
	require.NoError(t, store.Clear(), "clear is idempotent")
}

func TestFileStoreKeepsOtherKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("theme: dark\nuid: abc\n"), 0o600))

	store := NewFileStore(path, "uid")
	id, err := store.UserID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	require.NoError(t, store.Clear())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "theme: dark\n", string(data))
}

func TestFileStoreErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: [unterminated"), 0o600))
	store := NewFileStore(path, "")

	_, err := store.UserID(t.Context())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoIdentity)

	assert.Error(t, NewFileStore(path, "").Save("  "))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = store.UserID(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	id, err := Static("7").UserID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	_, err = Static(" ").UserID(t.Context())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

type countingProvider struct {
	calls atomic.Int32
	id    string
	err   error
}

func (c *countingProvider) UserID(context.Context) (string, error) {
	c.calls.Add(1)
	return c.id, c.err
}

func TestCachedProvider(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{id: "u1"}
	cached := NewCached(inner, time.Hour)

	for range 3 {
		id, err := cached.UserID(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "u1", id)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	cached.Invalidate()
	inner.id = "u2"
	id, err := cached.UserID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "u2", id)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{err: ErrNoIdentity}
	cached := NewCached(inner, time.Hour)

	_, err := cached.UserID(t.Context())
	require.ErrorIs(t, err, ErrNoIdentity)

	inner.err = nil
	inner.id = "late-login"
	id, err := cached.UserID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "late-login", id)
}

func TestCachedProviderExpires(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{id: "u1"}
	cached := NewCached(inner, 20*time.Millisecond)
	_, err := cached.UserID(t.Context())
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = cached.UserID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestFromSettings(t *testing.T) {
	t.Parallel()

	p := FromSettings(conf.IdentitySettings{UserID: "fixed"}, "")
	assert.IsType(t, Static(""), p)

	p = FromSettings(conf.IdentitySettings{Path: "session.yaml"}, "/etc/parkwatch/config.yaml")
	store, ok := p.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/etc/parkwatch", "session.yaml"), store.Path())

	p = FromSettings(conf.IdentitySettings{Path: "session.yaml", CacheTTL: time.Minute}, "")
	assert.IsType(t, &Cached{}, p)
}
