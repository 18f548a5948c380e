package lifecycle

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerFile_WriteThenRead_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	f := NewServerFile(dir)

	status := ServerStatus{
		PID:         1234,
		Port:        7444,
		Host:        "127.0.0.1",
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ProjectRoot: "/project",
		Ready:       false,
	}
	require.NoError(t, f.Write(status))

	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, status.PID, got.PID)
	assert.Equal(t, status.Port, got.Port)
	assert.Equal(t, status.Host, got.Host)
	assert.Equal(t, status.ProjectRoot, got.ProjectRoot)
	assert.Equal(t, status.Ready, got.Ready)
	assert.True(t, status.StartedAt.Equal(got.StartedAt))
}

func TestServerFile_SetReady_TogglesFlag(t *testing.T) {
	dir := t.TempDir()
	f := NewServerFile(dir)
	require.NoError(t, f.Write(ServerStatus{PID: 1, Ready: false}))

	require.NoError(t, f.SetReady(true))

	got, err := f.Read()
	require.NoError(t, err)
	assert.True(t, got.Ready)
}

func TestServerFile_Read_MissingFile_ReturnsNotFound(t *testing.T) {
	f := NewServerFile(t.TempDir())
	_, err := f.Read()
	assert.ErrorIs(t, err, ErrServerFileNotFound)
}

func TestServerFile_Remove_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	f := NewServerFile(dir)
	require.NoError(t, f.Write(ServerStatus{PID: 1}))

	require.NoError(t, f.Remove())
	_, err := os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Remove())
}
