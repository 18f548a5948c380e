package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couzic/ts-graph-mcp/internal/lifecycle"
	"github.com/couzic/ts-graph-mcp/internal/output"
)

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running server for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd)
		},
	}
	return cmd
}

// runStop reads server.json for the project's running instance and
// asks it to shut down gracefully over HTTP (POST /stop), the same
// transport serve uses for its route table. If the process is gone but
// left server.json behind, the file is removed directly instead of
// signalling a PID that no longer belongs to this server.
func runStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(absRoot, cacheDirName)
	serverFile := lifecycle.NewServerFile(cacheDir)

	status, err := serverFile.Read()
	if err != nil {
		if err == lifecycle.ErrServerFileNotFound {
			out.Status("", "No server is running for this project")
			return nil
		}
		return err
	}

	if !processAlive(status.PID) {
		out.Warning("server.json refers to a process that is no longer running; removing stale file")
		return serverFile.Remove()
	}

	addr := fmt.Sprintf("http://%s:%d/stop", status.Host, status.Port)
	req, err := http.NewRequest(http.MethodPost, addr, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)

	for i := 0; i < 50; i++ {
		if !processAlive(status.PID) {
			out.Success("server stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	out.Warning("server did not exit within the timeout")
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
