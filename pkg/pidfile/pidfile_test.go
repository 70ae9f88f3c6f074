package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRemoveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navcore.pid")
	p := New(path)

	require.NoError(t, p.Create())

	pid, err := p.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateRejectsWhenAnotherInstanceIsRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navcore.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))

	p := New(path)
	err := p.Create()
	assert.Error(t, err)
}

func TestCreateRemovesStalePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navcore.pid")
	// 999999 is a syntactically valid PID assumed not to belong to a
	// running process, so signaling it fails and Create takes the
	// stale-file cleanup path.
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0o644))

	p := New(path)
	err := p.Create()
	require.NoError(t, err)

	pid, err := p.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestCheckRunningReportsFalseWhenNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navcore.pid")
	p := New(path)

	running, _, err := p.CheckRunning()
	require.NoError(t, err)
	assert.False(t, running)
}
