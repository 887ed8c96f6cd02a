package coordinator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicode/replicode/pkg/wire"
)

func TestParseCommandLine(t *testing.T) {
	cmd, err := ParseCommandLine("stdin 3 hello world")
	require.NoError(t, err)
	assert.Equal(t, "stdin", cmd.Verb)
	assert.Equal(t, uint64(3), cmd.PID)
	assert.Equal(t, []string{"hello", "world"}, cmd.Args)
}

func TestParseCommandLine_Init(t *testing.T) {
	cmd, err := ParseCommandLine("init /modules/app.wasm")
	require.NoError(t, err)
	assert.Equal(t, "init", cmd.Verb)
	assert.Equal(t, []string{"/modules/app.wasm"}, cmd.Args)
}

func TestParseCommandLine_Clock(t *testing.T) {
	cmd, err := ParseCommandLine("clock 5000")
	require.NoError(t, err)
	assert.Equal(t, "clock", cmd.Verb)
	assert.Equal(t, []string{"5000"}, cmd.Args)

	_, err = ParseCommandLine("clock notanumber")
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestParseCommandLine_Exit(t *testing.T) {
	cmd, err := ParseCommandLine("exit")
	require.NoError(t, err)
	assert.Equal(t, "exit", cmd.Verb)

	_, err = ParseCommandLine("exit now")
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestParseCommandLine_Malformed(t *testing.T) {
	_, err := ParseCommandLine("stdin")
	assert.ErrorIs(t, err, ErrBadCommand)

	_, err = ParseCommandLine("stdin notanumber hi")
	assert.ErrorIs(t, err, ErrBadCommand)

	_, err = ParseCommandLine("frobnicate 1 2")
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestCommand_ToRecord_Seed(t *testing.T) {
	cmd, err := ParseCommandLine("seed 1 /seed/app")
	require.NoError(t, err)
	rec, ok := cmd.ToRecord()
	require.True(t, ok)
	assert.Equal(t, wire.TagInit, rec.Tag)

	dir, ok := wire.InitDir(rec)
	require.True(t, ok)
	assert.Equal(t, "/seed/app", dir)
}

func TestCommand_ToRecord_Stdin(t *testing.T) {
	cmd, err := ParseCommandLine("stdin 5 ping")
	require.NoError(t, err)
	rec, ok := cmd.ToRecord()
	require.True(t, ok)

	fd, data, ok := wire.FDMsg(rec)
	require.True(t, ok)
	assert.Equal(t, uint8(0), fd)
	assert.Equal(t, []byte("ping\n"), data)
}

func TestCommand_ToRecord_Clock(t *testing.T) {
	cmd, err := ParseCommandLine("clock 123")
	require.NoError(t, err)
	rec, ok := cmd.ToRecord()
	require.True(t, ok)
	assert.Equal(t, wire.TagClock, rec.Tag)

	nanos, ok := wire.ClockAdvance(rec)
	require.True(t, ok)
	assert.Equal(t, uint64(123), nanos)
}

func TestCommand_ToRecord_InitHasNoWireForm(t *testing.T) {
	cmd, err := ParseCommandLine("init /modules/app.wasm")
	require.NoError(t, err)
	_, ok := cmd.ToRecord()
	assert.False(t, ok)
}

func TestRunConsole(t *testing.T) {
	loop := &MainLoop{}
	input := "stdin 1 hi\n# comment\n\nseed 2 /seed\n"
	require.NoError(t, RunConsole(strings.NewReader(input), loop))
	assert.Len(t, loop.pending, 2)
}

func TestRunConsole_ExitStopsLoop(t *testing.T) {
	loop := &MainLoop{}
	input := "stdin 1 hi\nexit\nstdin 2 should-not-run\n"
	require.NoError(t, RunConsole(strings.NewReader(input), loop))
	assert.Len(t, loop.pending, 1)
}
