package coordinator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/replicode/replicode/internal/errx"
	"github.com/replicode/replicode/pkg/wire"
)

// Command is one parsed operator console or script line. Verb is one
// of "init", "seed", "stdin", "clock", or "exit"; PID is meaningful
// only for "seed" and "stdin".
type Command struct {
	Verb string
	PID  uint64
	Args []string
}

// ParseCommandLine parses one line of console or script input into a
// Command. Grammar:
//
//	init <wasm-file-path>
//	seed <pid> <host-dir>
//	stdin <pid> <text...>
//	clock <nanos>
//	exit
//
// init carries no pid: the coordinator assigns one when it loads the
// file. seed is the console's shortcut for seeding a guest's sandbox
// directory straight from the host filesystem, bypassing a file load.
func ParseCommandLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errx.With(ErrBadCommand, ": %q", line)
	}

	verb := fields[0]
	switch verb {
	case "init":
		if len(fields) != 2 {
			return Command{}, errx.With(ErrBadCommand, ": %q", line)
		}
		return Command{Verb: verb, Args: fields[1:]}, nil

	case "clock":
		if len(fields) != 2 {
			return Command{}, errx.With(ErrBadCommand, ": %q", line)
		}
		if _, err := strconv.ParseUint(fields[1], 10, 64); err != nil {
			return Command{}, errx.With(ErrBadCommand, ": bad nanos in %q", line)
		}
		return Command{Verb: verb, Args: fields[1:]}, nil

	case "exit":
		if len(fields) != 1 {
			return Command{}, errx.With(ErrBadCommand, ": %q", line)
		}
		return Command{Verb: verb}, nil

	case "seed", "stdin":
		if len(fields) < 3 {
			return Command{}, errx.With(ErrBadCommand, ": %q", line)
		}
		pid, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Command{}, errx.With(ErrBadCommand, ": bad pid in %q", line)
		}
		return Command{Verb: verb, PID: pid, Args: fields[2:]}, nil

	default:
		return Command{}, errx.With(ErrBadCommand, ": unknown verb in %q", line)
	}
}

// ToRecord converts a parsed Command into the wire Record it produces,
// if any. "init" and "exit" have no wire representation: init must
// read a file from disk and assign a pid before a record can exist, and
// exit only stops the console loop; callers handle both directly.
func (c Command) ToRecord() (wire.Record, bool) {
	switch c.Verb {
	case "seed":
		if len(c.Args) == 0 {
			return wire.Record{}, false
		}
		return wire.NewInitRecord(c.PID, nil, c.Args[0]), true
	case "stdin":
		return wire.NewFDMsgRecord(c.PID, 0, []byte(strings.Join(c.Args, " ")+"\n")), true
	case "clock":
		nanos, _ := strconv.ParseUint(c.Args[0], 10, 64)
		return wire.NewClockRecordWithNanos(0, nanos), true
	default:
		return wire.Record{}, false
	}
}

// RunConsole reads operator commands from r, one per line, enqueueing
// each onto loop. Blank lines and lines starting with "#" are ignored.
// A malformed line is rejected to stderr instead of being silently
// dropped. RunConsole has no file-loading capability of its own, so
// "init" lines parse but enqueue nothing; callers that can load files
// from disk (cmd/coordinator's console loader) handle "init" before
// falling through to this grammar.
func RunConsole(r io.Reader, loop *MainLoop) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := ParseCommandLine(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if cmd.Verb == "exit" {
			return nil
		}
		if rec, ok := cmd.ToRecord(); ok {
			loop.Enqueue(rec)
		}
	}
	return scanner.Err()
}
