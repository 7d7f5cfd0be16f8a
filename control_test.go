package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rishta/lifecycle"
	"rishta/notify"
	"rishta/server"
)

type fixedCounters struct{ users, conversations, messages int }

func (f fixedCounters) CountUsers(context.Context) (int, error)         { return f.users, nil }
func (f fixedCounters) CountConversations(context.Context) (int, error) { return f.conversations, nil }
func (f fixedCounters) CountMessages(context.Context) (int, error)      { return f.messages, nil }

func startControl(t *testing.T) (*control, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &control{
		path:     filepath.Join(t.TempDir(), "ctl.sock"),
		tcp:      server.New(lifecycle.NewService(nil, notify.NewHub(), lifecycle.Options{Logger: logger}), nil, &server.ServerConfig{}, logger),
		counters: fixedCounters{users: 3, conversations: 2, messages: 7},
		logger:   logger,
		stop:     cancel,
	}
	go c.serve(ctx)

	require.Eventually(t, func() bool {
		_, err := sendControl(c.path, "stats")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	return c, ctx
}

func TestControlStats(t *testing.T) {
	c, _ := startControl(t)

	reply, err := sendControl(c.path, "stats")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "connections=0,"), reply)
	assert.Contains(t, reply, "registered=3")
	assert.Contains(t, reply, "conversations=2")
	assert.Contains(t, reply, "messages=7")
}

func TestControlUnknownCommand(t *testing.T) {
	c, _ := startControl(t)

	_, err := sendControl(c.path, "reboot")
	assert.EqualError(t, err, "Unknown command")

	_, err = sendControl(c.path, "shutdown|now|tomorrow")
	assert.EqualError(t, err, "completion time must be RFC3339")
	assert.False(t, c.shutdownRequested())
}

func TestControlShutdownStopsServing(t *testing.T) {
	c, ctx := startControl(t)

	reply, err := sendControl(c.path, "shutdown|upgrade|2030-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "Shutting down", reply)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not cancel the server context")
	}
	assert.True(t, c.shutdownRequested())
}
