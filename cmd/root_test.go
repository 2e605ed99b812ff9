package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout. Flag
// values left over from earlier runs are reset first.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	outputFormat = "json"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// useSQLite points the CLI at a fresh SQLite database.
func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("BRAND_STORE_DRIVER", "sqlite")
	t.Setenv("BRAND_STORE_DATABASE_URL", filepath.Join(t.TempDir(), "brand.db"))
	t.Setenv("BRAND_LOG_LEVEL", "error")
	t.Setenv("BRAND_REDIS_ADDR", "")
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "profile", "score", "cache"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "brand-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "json", flag.DefValue)
}

func TestProfileCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range profileCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"create", "get", "list", "delete", "recrawl", "set", "approve", "version", "accept"}
	for _, name := range expected {
		assert.True(t, names[name], "profile should have subcommand %q", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestProfileCreateCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "url", "owner", "seed"} {
		assert.NotNil(t, profileCreateCmd.Flags().Lookup(name), "profile create should have --%s flag", name)
	}
}

func TestProfileEditCommands_RequireEditor(t *testing.T) {
	for _, c := range []*cobra.Command{profileSetCmd, profileApproveCmd, profileAcceptCmd} {
		flag := c.Flags().Lookup("editor")
		require.NotNil(t, flag, "%s should have --editor", c.Name())
		assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag], "%s --editor should be required", c.Name())
	}
}
