package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "env-file", "port", "dev"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRootCmdRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "settings.env")
	require.NoError(t, os.WriteFile(envFile, []byte("KEY=value\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"missing config file", []string{"--env-file", filepath.Join(dir, "none.env"), "--config", filepath.Join(dir, "missing.yaml")}},
		{"unsupported config format", []string{"--env-file", filepath.Join(dir, "none.env"), "--config", envFile}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			assert.Error(t, cmd.Execute())
		})
	}
}
