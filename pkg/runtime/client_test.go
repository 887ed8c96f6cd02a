package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicode/replicode/internal/testutil"
	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/engine"
	"github.com/replicode/replicode/pkg/wire"
)

func TestClient_ReplayInitRecordSpawnsGuest(t *testing.T) {
	rec := wire.NewInitRecord(1, []byte("exit 5\n"), "")
	b := wire.Batch{Number: 0, Direction: wire.Incoming, Data: rec.Encode(wire.NewClockRecord(0).Encode(nil))}

	fc, err := testutil.StartFakeCoordinator([]wire.Batch{b})
	require.NoError(t, err)
	defer fc.Close()

	sched := NewScheduler(NewSyscalls(clock.New(), make(chan wire.NetworkOperation, 1)), 1_000_000, nil)
	netOut := make(chan wire.NetworkOperation, 1)
	client, err := Dial(fc.Addr(), clock.New(), sched, netOut, nil, engine.MockBackend{}, filepath.Join(t.TempDir(), "sandboxes"), 1<<20)
	require.NoError(t, err)
	defer client.Close()

	go client.Run()

	waited := make(chan struct{})
	go func() { sched.Wait(); close(waited) }()

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("spawned guest never ran to completion")
	}
	assert.True(t, true) // reaching here confirms the Init record spawned and ran the guest
}

func TestClient_ReplayDirInitSeedsSandbox(t *testing.T) {
	seed := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seed, "hello.txt"), []byte("hi"), 0644))

	rec := wire.NewInitRecord(7, nil, seed)
	b := wire.Batch{Number: 0, Direction: wire.Incoming, Data: rec.Encode(nil)}

	fc, err := testutil.StartFakeCoordinator([]wire.Batch{b})
	require.NoError(t, err)
	defer fc.Close()

	sched := NewScheduler(NewSyscalls(clock.New(), make(chan wire.NetworkOperation, 1)), 1_000_000, nil)
	sandboxBase := filepath.Join(t.TempDir(), "sandboxes")
	client, err := Dial(fc.Addr(), clock.New(), sched, make(chan wire.NetworkOperation, 1), nil, engine.MockBackend{}, sandboxBase, 1<<20)
	require.NoError(t, err)
	defer client.Close()

	done := make(chan struct{})
	go func() { client.Run(); close(done) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(sandboxBase, "7", "hello.txt"))
		return err == nil && string(data) == "hi"
	}, time.Second, 10*time.Millisecond)
	_ = done
}
