package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "batch.pid")
}

func TestAcquireAndRelease(t *testing.T) {
	path := lockPath(t)
	l := New(path, nil)
	require.NoError(t, l.Acquire())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(b[:len(b)-1]))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSecondAcquireFailsWhileHeld(t *testing.T) {
	path := lockPath(t)
	first := New(path, nil)
	require.NoError(t, first.Acquire())
	defer func() { _ = first.Release() }()

	second := New(path, nil)
	err := second.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeld)
}

func TestStaleLockFileIsReclaimed(t *testing.T) {
	path := lockPath(t)
	// A pid file left behind by a dead process: nothing holds the flock,
	// so acquisition succeeds directly regardless of the recorded pid.
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))

	l := New(path, nil)
	require.NoError(t, l.Acquire())
	defer func() { _ = l.Release() }()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(b[:len(b)-1]))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReacquireAfterRelease(t *testing.T) {
	path := lockPath(t)
	l := New(path, nil)
	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())

	again := New(path, nil)
	require.NoError(t, again.Acquire())
	require.NoError(t, again.Release())
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	l := New(lockPath(t), nil)
	assert.NoError(t, l.Release())
}

func TestPidAlive(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(0))
	assert.False(t, pidAlive(999999999))
}
