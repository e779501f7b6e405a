package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestRootRegistersCommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"serve", "status", "errors", "purge", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestBuildLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	buildLogger(&buf, Config{LogLevel: "debug", LogFormat: "json"}).Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	buildLogger(&buf, Config{LogLevel: "warn"}).Info("hidden")
	assert.Empty(t, buf.String())
}
