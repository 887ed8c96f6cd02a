package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFDTable_ReservedSlots(t *testing.T) {
	tbl := NewFDTable("/sandbox")

	stdin, err := tbl.Get(FDStdin)
	require.NoError(t, err)
	assert.True(t, stdin.IsPreopen)

	root, err := tbl.Get(FDRoot)
	require.NoError(t, err)
	assert.True(t, root.IsDirectory)
	assert.Equal(t, "/sandbox", root.HostPath)
}

func TestFDTable_AllocateDeallocate(t *testing.T) {
	tbl := NewFDTable("/sandbox")

	fd, err := tbl.Allocate(&FDEntry{Kind: FDFile, HostPath: "/sandbox/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, firstAllocatableFD, fd)

	require.NoError(t, tbl.Deallocate(fd))
	_, err = tbl.Get(fd)
	require.NoError(t, err)
}

func TestFDTable_ExhaustsSlots(t *testing.T) {
	tbl := NewFDTable("/sandbox")
	for i := 0; i < MaxFDs-firstAllocatableFD; i++ {
		_, err := tbl.Allocate(&FDEntry{Kind: FDFile})
		require.NoError(t, err)
	}
	_, err := tbl.Allocate(&FDEntry{Kind: FDFile})
	assert.ErrorIs(t, err, ErrNoFreeFD)
}

func TestFDTable_CannotDeallocateReserved(t *testing.T) {
	tbl := NewFDTable("/sandbox")
	assert.ErrorIs(t, tbl.Deallocate(FDStdin), ErrFDReserved)
}

func TestFDTable_HasPendingInput(t *testing.T) {
	tbl := NewFDTable("/sandbox")
	assert.False(t, tbl.HasPendingInput(FDStdin))
	require.NoError(t, tbl.AppendInput(FDStdin, []byte("hi")))
	assert.True(t, tbl.HasPendingInput(FDStdin))
}

func TestProcess_BlockWake(t *testing.T) {
	p := New(1, "/sandbox", 1<<20)

	done := make(chan struct{})
	go func() {
		p.Block(BlockStdinRead)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	state, reason := p.Snapshot()
	assert.Equal(t, StateBlocked, state)
	assert.Equal(t, BlockStdinRead, reason)

	p.Wake()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Block did not return after Wake")
	}

	state, _ = p.Snapshot()
	assert.Equal(t, StateReady, state)
}

func TestProcess_UsageQuota(t *testing.T) {
	p := New(1, "/sandbox", 100)
	require.NoError(t, p.UsageAdd(60))
	require.NoError(t, p.UsageAdd(40))
	assert.ErrorIs(t, p.UsageAdd(1), ErrQuotaExceeded)

	p.UsageSub(100)
	assert.NoError(t, p.UsageAdd(50))
}

func TestProcess_FinishWakesBlocked(t *testing.T) {
	p := New(1, "/sandbox", 1<<20)
	done := make(chan struct{})
	go func() {
		p.Block(BlockNetworkIO)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Finish()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Block did not return after Finish")
	}
}
