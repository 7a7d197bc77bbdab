package ruledaemon

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkim/flowtap/internal/logger"
	"github.com/pavelkim/flowtap/internal/ruleset"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.Config{Console: logger.SinkConfig{Enabled: true, Level: "error"}})
	require.NoError(t, err)
	return l
}

func TestDaemon_UpdatesAllCells(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "rules.sock")

	cellA := ruleset.NewCell(mustCompile(t, nil))
	cellB := ruleset.NewCell(mustCompile(t, nil))
	d := New(socketPath, []*ruleset.Cell{cellA, cellB}, testLogger(t))

	require.NoError(t, d.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"rules": ["hello"]}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return cellA.Match([]byte("hello")) && cellB.Match([]byte("hello"))
	}, time.Second, 10*time.Millisecond)
}

func TestDaemon_InvalidPatternKeepsPreviousRuleset(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "rules.sock")

	cell := ruleset.NewCell(mustCompile(t, []string{"keep"}))
	d := New(socketPath, []*ruleset.Cell{cell}, testLogger(t))

	require.NoError(t, d.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"rules": ["(unterminated"]}`))
	require.NoError(t, err)
	conn.Close()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, cell.Match([]byte("keep")))
}

func mustCompile(t *testing.T, patterns []string) *ruleset.Matcher {
	t.Helper()
	m, err := ruleset.Compile(patterns)
	require.NoError(t, err)
	return m
}
