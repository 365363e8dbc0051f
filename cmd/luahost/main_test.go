package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/luahost/behavior"
	"github.com/wippyai/luahost/config"
)

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b.c"}, splitList(" a, ,b.c ,"))
}

func TestLogSink_KeepsLastLines(t *testing.T) {
	s := &logSink{}
	for i := 0; i < maxLogs+3; i++ {
		_, err := fmt.Fprintf(s, "line %d\n", i)
		require.NoError(t, err)
	}
	lines := s.snapshot()
	require.Len(t, lines, maxLogs)
	assert.Equal(t, "line 3", lines[0])
	assert.Equal(t, fmt.Sprintf("line %d", maxLogs+2), lines[maxLogs-1])
}

func TestInteractive_Execute(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LuaInit.lua"), []byte(`
		function Init() booted = true end
		function add(a, b) return a + b end
	`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ticker.lua"), []byte(`
		local M = {}
		function M.Update() n = (n or 0) + 1 end
		return M
	`), 0o644))

	cfg := config.Default()
	cfg.ScriptRoot = dir
	cfg.PersistentDataPath = dir

	sink := &logSink{}
	log, err := newLogger("info", sink)
	require.NoError(t, err)

	rt, err := boot(cfg, "ticker", log)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	m := newInteractiveModel(rt, sink, 60)

	m.execute("return booted, 1 + 2")
	require.Len(t, m.output, 2)
	assert.Equal(t, "[1] true", m.output[0].text)
	assert.Equal(t, "[2] 3", m.output[1].text)

	m.execute(":call add 2 5")
	assert.Equal(t, "[1] 7", m.output[len(m.output)-1].text)

	m.execute("error('boom')")
	assert.True(t, m.output[len(m.output)-1].err)

	m.execute(":attach ticker")
	require.Len(t, behavior.Live(rt), 2)

	m.Update(frameMsg{})
	m.Update(frameMsg{})
	assert.Equal(t, 2, m.frames)

	m.execute(":destroy 1")
	assert.Len(t, behavior.Live(rt), 1)

	m.execute(":destroy 9")
	assert.True(t, m.output[len(m.output)-1].err)

	m.execute(":nope")
	assert.Equal(t, "unknown command :nope", m.output[len(m.output)-1].text)
}
