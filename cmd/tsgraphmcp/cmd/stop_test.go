package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couzic/ts-graph-mcp/internal/lifecycle"
)

func TestProcessAlive_CurrentProcess(t *testing.T) {
	// Given: this test's own PID

	// When/Then: it reports alive
	assert.True(t, processAlive(os.Getpid()))
}

func TestProcessAlive_InvalidPID(t *testing.T) {
	// Given: a non-positive PID

	// When/Then: it reports not alive without erroring
	assert.False(t, processAlive(0))
	assert.False(t, processAlive(-1))
}

func TestRunStop_NoServerFile(t *testing.T) {
	// Given: a project directory with no server.json
	root := t.TempDir()
	origProjectRoot := projectRoot
	projectRoot = root
	defer func() { projectRoot = origProjectRoot }()

	cmd := newStopCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	// When: running stop
	err := runStop(cmd)

	// Then: it reports no server running rather than failing
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No server is running")
}

func TestRunStop_StalePIDRemovesServerFile(t *testing.T) {
	// Given: a server.json referencing a PID that cannot be alive
	root := t.TempDir()
	origProjectRoot := projectRoot
	projectRoot = root
	defer func() { projectRoot = origProjectRoot }()

	cacheDir := filepath.Join(root, cacheDirName)
	sf := lifecycle.NewServerFile(cacheDir)
	require.NoError(t, sf.Write(lifecycle.ServerStatus{
		PID:         999999999,
		Port:        7444,
		Host:        "127.0.0.1",
		StartedAt:   time.Now(),
		ProjectRoot: root,
	}))

	cmd := newStopCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	// When: running stop
	err := runStop(cmd)

	// Then: the stale file is removed without attempting an HTTP call
	require.NoError(t, err)
	_, readErr := sf.Read()
	assert.ErrorIs(t, readErr, lifecycle.ErrServerFileNotFound)
}

func TestRunStop_LiveServerStopsViaHTTP(t *testing.T) {
	// Given: a running HTTP server whose PID is this test process itself,
	// so processAlive reports true and runStop attempts the /stop call
	stopped := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stop", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "stopping"})
		select {
		case stopped <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	host, portStr := splitTestAddr(t, srv.Listener.Addr().String())

	root := t.TempDir()
	origProjectRoot := projectRoot
	projectRoot = root
	defer func() { projectRoot = origProjectRoot }()

	cacheDir := filepath.Join(root, cacheDirName)
	sf := lifecycle.NewServerFile(cacheDir)
	require.NoError(t, sf.Write(lifecycle.ServerStatus{
		PID:         os.Getpid(),
		Port:        portStr,
		Host:        host,
		StartedAt:   time.Now(),
		ProjectRoot: root,
	}))

	cmd := newStopCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	// When: running stop
	done := make(chan error, 1)
	go func() { done <- runStop(cmd) }()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received /stop request")
	}

	// Then: runStop eventually times out waiting for the (still alive,
	// since it's this test process) PID to exit, without erroring
	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "did not exit within the timeout")
	case <-time.After(10 * time.Second):
		t.Fatal("runStop did not return")
	}
}

func splitTestAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
