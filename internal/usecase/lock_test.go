package usecase

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"bytemomo/autopen/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", ".run.lock")
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	lock, err := AcquireLock(path, "r1", now)
	require.NoError(t, err)

	holder, err := ReadLock(path)
	require.NoError(t, err)
	assert.Equal(t, "r1", holder.RunID)
	assert.Equal(t, "2025-01-02T03:04:05Z", holder.CreatedAt)
	assert.Equal(t, os.Getpid(), holder.PID)

	_, err = AcquireLock(path, "r2", now)
	require.Error(t, err)
	assert.True(t, IsLocked(err))
	assert.Contains(t, err.Error(), "r1")

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".run.lock")

	existed, err := RemoveLock(path)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = AcquireLock(path, "r", time.Now())
	require.NoError(t, err)
	existed, err = RemoveLock(path)
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestStatus(t *testing.T) {
	paths := config.Paths{Home: t.TempDir()}

	st := Status(paths)
	assert.False(t, st.OutExists)
	assert.False(t, st.Locked)

	_, err := AcquireLock(paths.LockFile(), "r9", time.Now())
	require.NoError(t, err)

	st = Status(paths)
	assert.True(t, st.OutExists)
	assert.True(t, st.Locked)
	require.NotNil(t, st.Holder)
	assert.Equal(t, "r9", st.Holder.RunID)
}

func TestNewRunID(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	id := NewRunID(now)
	assert.Regexp(t, regexp.MustCompile(`^20250304_050607_[0-9a-f]{6}$`), id)
	assert.NotEqual(t, id, NewRunID(now))
}
