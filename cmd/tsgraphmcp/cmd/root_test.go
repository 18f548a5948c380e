package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	// Then: it should show usage information
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "tsgraphmcp", "Help should mention program name")
	assert.Contains(t, output, "Usage:", "Help should show usage")
}

func TestRootCmd_ShowsVersion(t *testing.T) {
	// Given: a root command

	// When: executing with --version
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	// Then: it should show version
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "tsgraphmcp version", "Version output should mention program name")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: a root command

	// When: checking available commands
	cmd := NewRootCmd()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	// Then: serve, index, and stop subcommands should exist
	assert.Contains(t, names, "serve", "Should have serve subcommand")
	assert.Contains(t, names, "index", "Should have index subcommand")
	assert.Contains(t, names, "stop", "Should have stop subcommand")
}

func TestRootCmd_HasProjectAndDebugFlags(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// Then: it should have --project and --debug persistent flags
	project := cmd.PersistentFlags().Lookup("project")
	require.NotNil(t, project, "Should have --project flag")
	assert.Equal(t, ".", project.DefValue)

	debug := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debug, "Should have --debug flag")
	assert.Equal(t, "false", debug.DefValue)
}

func TestServeCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing serve --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--help"})

	err := cmd.Execute()

	// Then: it should show serve usage
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "serve"), "Serve help should mention serve")
}

func TestIndexCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing index --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--help"})

	err := cmd.Execute()

	// Then: it should show index usage
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "index", "Index help should mention index")
}

func TestStopCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing stop --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"stop", "--help"})

	err := cmd.Execute()

	// Then: it should show stop usage
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "stop", "Stop help should mention stop")
}
