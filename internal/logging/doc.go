// Package logging provides opt-in file-based logging with rotation.
// When the --debug flag is set, comprehensive logs are written to
// ~/.ts-graph-mcp/logs/ for debugging and troubleshooting.
package logging
