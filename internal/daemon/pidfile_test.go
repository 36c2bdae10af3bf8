package daemon

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "ghost.pid")
	pf := NewPIDFile(path)

	started := time.Unix(1717243200, 0)
	require.NoError(t, pf.WriteRecord(Record{PID: 12345, Addr: "127.0.0.1:8787", Started: started}))

	r, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, r.PID)
	assert.Equal(t, "127.0.0.1:8787", r.Addr)
	assert.True(t, started.Equal(r.Started))
}

func TestPIDFile_Read_PIDOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghost.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	r, err := NewPIDFile(path).Read()
	require.NoError(t, err)
	assert.Equal(t, 4242, r.PID)
	assert.Empty(t, r.Addr)
	assert.True(t, r.Started.IsZero())
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))
	_, err := pf.Read()
	assert.Error(t, err)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_IsRunning_CurrentProcess(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "ghost.pid"))
	require.NoError(t, pf.Write(":8787"))

	r, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), r.PID)
	assert.Equal(t, ":8787", r.Addr)
}

func TestPIDFile_IsRunning_DeadProcess(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "ghost.pid"))
	// Use a very high PID that almost certainly doesn't exist.
	require.NoError(t, pf.WriteRecord(Record{PID: 999999}))

	r, running := pf.IsRunning()
	require.NotNil(t, r)
	assert.Equal(t, 999999, r.PID)
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))
	r, running := pf.IsRunning()
	assert.Nil(t, r)
	assert.False(t, running)
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "ghost.pid"))

	// Stale file from a dead server is taken over.
	require.NoError(t, pf.WriteRecord(Record{PID: 999999, Addr: ":1"}))
	require.NoError(t, pf.Acquire(":8787"))

	r, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), r.PID)

	// Re-acquiring from the owning process is fine.
	assert.NoError(t, pf.Acquire(":8787"))
}

func TestPIDFile_Acquire_LiveOwner(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "ghost.pid"))
	// The parent process is alive for the duration of the test.
	require.NoError(t, pf.WriteRecord(Record{PID: os.Getppid(), Addr: ":9000"}))

	err := pf.Acquire(":8787")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), ":9000")
}

func TestPIDFile_Release(t *testing.T) {
	dir := t.TempDir()

	mine := NewPIDFile(filepath.Join(dir, "mine.pid"))
	require.NoError(t, mine.Write(":8787"))
	require.NoError(t, mine.Release())
	_, err := os.Stat(mine.Path)
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is a no-op.
	assert.NoError(t, mine.Release())

	other := NewPIDFile(filepath.Join(dir, "other.pid"))
	require.NoError(t, other.WriteRecord(Record{PID: 999999}))
	require.NoError(t, other.Release())
	_, err = os.Stat(other.Path)
	assert.NoError(t, err, "another process's file is left alone")
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "ghost.pid"))
	require.NoError(t, pf.WriteRecord(Record{PID: 999999}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := pf.Stop(ctx)
	assert.Error(t, err)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "ghost.pid"))
	require.NoError(t, pf.Write(":8787"))

	// Signal 0 just checks if process exists, doesn't actually send a signal.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))
	err := pf.Signal(syscall.Signal(0))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}
