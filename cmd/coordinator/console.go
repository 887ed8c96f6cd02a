package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/replicode/replicode/pkg/coordinator"
	"github.com/replicode/replicode/pkg/modulestore"
	"github.com/replicode/replicode/pkg/wire"
)

// runConsoleWithLoader reads the operator console grammar from r,
// delegating every line to coordinator.ParseCommandLine/ToRecord except
// "load <pid> <path-or-image>" and "init <path>", which this
// coordinator resolves through the module store before enqueuing the
// resulting Init record. "load" takes an explicit pid; "init" assigns
// one with loop.AllocatePID, matching the pidless grammar the console
// accepts. A bare filesystem path is read and cached by content digest;
// a "oci:<reference>" source is pulled from a registry the same way.
// "exit" stops the scan and returns.
func runConsoleWithLoader(ctx context.Context, r io.Reader, loop *coordinator.MainLoop, store *modulestore.Store) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch {
		case len(fields) >= 3 && fields[0] == "load":
			handleLoad(ctx, fields, loop, store)
			continue
		case len(fields) == 2 && fields[0] == "init":
			handleInit(ctx, fields[1], loop, store)
			continue
		case len(fields) == 1 && fields[0] == "exit":
			return nil
		}

		cmd, err := coordinator.ParseCommandLine(line)
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

// handleInit loads source as a guest module (a local path or an
// "oci:<reference>"), caching it in store, assigns the module a fresh
// pid, and enqueues the Init record that spawns it.
func handleInit(ctx context.Context, source string, loop *coordinator.MainLoop, store *modulestore.Store) {
	var data []byte
	if strings.HasPrefix(source, "oci:") {
		digest, err := store.PullImage(ctx, strings.TrimPrefix(source, "oci:"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		got, err := store.Get(digest)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		data = got
	} else {
		raw, err := os.ReadFile(source)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if _, err := store.Put(raw, "local"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		data = raw
	}

	pid := loop.AllocatePID()
	loop.Enqueue(wire.NewInitRecord(pid, data, ""))
}

func handleLoad(ctx context.Context, fields []string, loop *coordinator.MainLoop, store *modulestore.Store) {
	pid, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return
	}
	source := fields[2]

	var data []byte
	if strings.HasPrefix(source, "oci:") {
		digest, err := store.PullImage(ctx, strings.TrimPrefix(source, "oci:"))
		if err != nil {
			return
		}
		data, err = store.Get(digest)
		if err != nil {
			return
		}
	} else {
		raw, err := os.ReadFile(source)
		if err != nil {
			return
		}
		if _, err := store.Put(raw, "local"); err != nil {
			return
		}
		data = raw
	}

	loop.Enqueue(wire.NewInitRecord(pid, data, ""))
}
