package coordinator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScript(t *testing.T) {
	input := "0 seed 1 /seed\n# comment\n250 stdin 1 go\n"
	lines, err := ParseScript(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, time.Duration(0), lines[0].Offset)
	assert.Equal(t, 250*time.Millisecond, lines[1].Offset)
	assert.Equal(t, "seed", lines[0].Cmd.Verb)
}

func TestParseScript_BadLine(t *testing.T) {
	_, err := ParseScript(strings.NewReader("notanumber stdin 1 hi"))
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestRunScript_EnqueuesInOrder(t *testing.T) {
	loop := &MainLoop{}
	script := []ScriptLine{
		{Offset: 0, Cmd: Command{Verb: "stdin", PID: 1, Args: []string{"a"}}},
		{Offset: 5 * time.Millisecond, Cmd: Command{Verb: "stdin", PID: 1, Args: []string{"b"}}},
	}
	RunScript(script, loop)
	require.Len(t, loop.pending, 2)
}
