package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { configPath, strict = "", false })
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunScript(t *testing.T) {
	cfg := writeFile(t, "ral.yaml", "log_level: error\nposix:\n  timer_engine: heap\n")
	script := writeFile(t, "s.ral", "queue q 1 4\nsend q ping\nrecv q\n")
	out, err := execute(t, "--config", cfg, "run", script)
	require.NoError(t, err)
	require.Equal(t, "ok\nok\nok ping\n", out)
}

func TestRunStrictFails(t *testing.T) {
	script := writeFile(t, "s.ral", "echo one\nrecv nothere\necho two\n")
	out, err := execute(t, "--config", "@sim-portable", "--strict", "run", script)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(out, "ok one\nerr invalid_arg\n"), out)
	require.NotContains(t, out, "ok two")
}

func TestDemoQueue(t *testing.T) {
	out, err := execute(t, "--config", "@sim-portable", "demo", "queue")
	require.NoError(t, err)
	require.Contains(t, out, "> recv q\nok first\n")
	require.Contains(t, out, "> send q third 0\nerr timeout\n")
}

func TestDemoUnknown(t *testing.T) {
	_, err := execute(t, "demo", "nope")
	require.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	_, err := execute(t, "--config", "@missing", "run", "-")
	require.Error(t, err)
}
