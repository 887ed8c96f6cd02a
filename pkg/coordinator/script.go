package coordinator

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/replicode/replicode/internal/errx"
)

// ScriptLine is one timed instruction from a benchmark script: at
// offset from the script's start, enqueue the command.
type ScriptLine struct {
	Offset time.Duration
	Cmd    Command
}

// ParseScript parses a benchmark script: each line is
// "<offset-ms> <command>", where <command> follows ParseCommandLine's
// grammar. Blank lines and lines starting with '#' are ignored.
func ParseScript(r io.Reader) ([]ScriptLine, error) {
	var lines []ScriptLine
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 {
			return nil, errx.With(ErrBadCommand, ": bad script line %q", raw)
		}
		ms, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, errx.With(ErrBadCommand, ": bad offset in %q", raw)
		}
		cmd, err := ParseCommandLine(parts[1])
		if err != nil {
			return nil, err
		}
		lines = append(lines, ScriptLine{Offset: time.Duration(ms) * time.Millisecond, Cmd: cmd})
	}
	return lines, scanner.Err()
}

// RunScript enqueues each line of script onto loop at its offset,
// relative to the call to RunScript. It blocks until the last line has
// fired, for running a coordinator unattended against a fixed workload
// instead of an interactive operator console.
func RunScript(script []ScriptLine, loop *MainLoop) {
	start := time.Now()
	for _, line := range script {
		target := start.Add(line.Offset)
		if d := time.Until(target); d > 0 {
			time.Sleep(d)
		}
		if rec, ok := line.Cmd.ToRecord(); ok {
			loop.Enqueue(rec)
		}
	}
}
