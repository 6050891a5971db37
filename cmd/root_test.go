// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dealwire/internal/observability"
)

// runRoot executes a fresh command tree with args and returns its output.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// clearEnv unsets every variable that would leak real settings into a test.
func clearEnv(t *testing.T) {
	for _, name := range []string{
		"SECRET", "CHOLLOMETRO_EMAIL", "CHOLLOMETRO_PASSWORD", "PORT",
		"DEALWIRE_PUBLISH_SECRET", "DEALWIRE_PUBLISH_EMAIL", "DEALWIRE_PUBLISH_PASSWORD", "DEALWIRE_SERVER_PORT",
	} {
		t.Setenv(name, "")
	}
	t.Chdir(t.TempDir())
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := runRoot(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestRootCmd_VersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dealwire "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := runRoot(t)
	require.NoError(t, err)
	assert.Contains(t, out, "dealwire publishes signed deals")
	for _, sub := range []string{"serve", "sign", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_ConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET", "k")

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := runRoot(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "sign", "-t", "x", "-u", "y")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("values from the file are used", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dealwire.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4100\n"), 0o600))

		out, err := runRoot(t, "--config", path, "sign", "-t", "x", "-u", "y")
		require.NoError(t, err)
		assert.Contains(t, out, "http://localhost:4100/publish?")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dealwire.yaml")
		require.NoError(t, os.WriteFile(path, []byte("browser:\n  concurrency: 0\n"), 0o600))

		_, err := runRoot(t, "--config", path, "sign", "-t", "x", "-u", "y")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.concurrency")
	})
}

func TestRootCmd_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("SECRET")
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SECRET") })

	out, err := runRoot(t, "--env-file", path, "sign", "-t", "x", "-u", "y")
	require.NoError(t, err)
	assert.Contains(t, out, "sig=")
}

func TestConfigFromWithoutRoot(t *testing.T) {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	_, err := configFrom(c)
	assert.Error(t, err)
}
