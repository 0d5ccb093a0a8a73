package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChannelsCommand(t *testing.T) {
	out, err := run("channels", "--session", "abc")
	require.NoError(t, err)

	assert.Contains(t, out, "inbound:  testem-wrap-proxy-bridge-python-js-abc")
	assert.Contains(t, out, "outbound: testem-wrap-proxy-bridge-js-python-abc")
}

func TestSendCommand(t *testing.T) {
	t.Run("publishes over the memory transport", func(t *testing.T) {
		out, err := run("send", "--transport", "memory", "--log-level", "error", "--session", "abc", `{"command":"done"}`)
		require.NoError(t, err)
		assert.Contains(t, out, "sent cmd to testem-wrap-proxy-bridge-js-python-abc")
	})

	t.Run("rejects an unknown message type", func(t *testing.T) {
		_, err := run("send", "--transport", "memory", "--type", "bogus", "{}")
		assert.ErrorContains(t, err, `unknown message type "bogus"`)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		_, err := run("send", "--transport", "memory", "{not json")
		assert.ErrorContains(t, err, "not valid JSON")
	})

	t.Run("rejects an unknown transport", func(t *testing.T) {
		_, err := run("send", "--transport", "pigeon", "{}")
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestCheckCommand(t *testing.T) {
	t.Run("memory transport is healthy", func(t *testing.T) {
		out, err := run("check", "--transport", "memory", "--log-level", "error")
		require.NoError(t, err)
		assert.Contains(t, out, `"publisher"`)
		assert.Contains(t, out, `"subscriber"`)
	})

	t.Run("unreachable redis fails after the wait", func(t *testing.T) {
		out, err := run("check", "--redis-addr", "127.0.0.1:1", "--log-level", "error", "--wait", "300ms")
		assert.ErrorIs(t, err, errUnhealthy)
		assert.Contains(t, out, `"status": "unhealthy"`)
	})
}
