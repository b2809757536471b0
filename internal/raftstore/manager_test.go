package raftstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManager_FreshInit(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, StateReady, m.State())

	info, err := m.LoadIndexInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), info.LastAppliedLog)
	require.Len(t, info.RaftIndex.Logs, 1)
	require.Equal(t, uint64(0), info.RaftIndex.Logs[0].StartIndex)
}

func TestManager_SaveAndReloadHardState(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, m.SaveHardState(context.Background(), 5, 2))
	require.NoError(t, m.Close())

	m2, err := Open(dir)
	require.NoError(t, err)
	defer m2.Close()

	hs, err := m2.LoadHardState(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), hs.CurrentTerm)
	require.Equal(t, uint64(2), hs.VotedFor)
}

func TestManager_HardStateTermMustBeMonotonic(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.SaveHardState(context.Background(), 5, 1))
	err = m.SaveHardState(context.Background(), 4, 1)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)

	// The rejected mutation must not have been persisted.
	hs, err := m.LoadHardState(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), hs.CurrentTerm)
}

func TestManager_LastAppliedLogMustBeMonotonic(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.SaveLastAppliedLog(context.Background(), 10))
	err = m.SaveLastAppliedLog(context.Background(), 3)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestManager_SaveLogsRejectsBrokenInvariant(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()

	bad := []LogRange{
		{ID: 0, StartIndex: 0, RecordCount: 5, IsClose: true},
		{ID: 1, StartIndex: 999, RecordCount: 1},
	}
	err = m.SaveLogs(context.Background(), bad)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)

	info, err := m.LoadIndexInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.RaftIndex.Logs, 1)
}

func TestManager_NodeAddrRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.AddNodeAddr(context.Background(), 1, "10.0.0.1:8091"))
	require.NoError(t, m.AddNodeAddr(context.Background(), 2, "10.0.0.2:8091"))

	addr, ok, err := m.GetTargetAddr(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.2:8091", addr)

	_, ok, err = m.GetTargetAddr(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_RejectsTruncatedCatalogOnReopen(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.SaveHardState(context.Background(), 3, 1))
	require.NoError(t, m.Close())

	// Simulate a crash that tore off the tail of the catalog record after
	// the length prefix had already been written.
	path := filepath.Join(dir, "index")
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-3))

	_, err = Open(dir)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindCorrupt, storeErr.Kind)
}

func TestManager_SaveMemberUpdatesMembershipAndAddrsTogether(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()

	addrs := map[uint64]string{1: "a", 2: "b"}
	require.NoError(t, m.SaveMember(context.Background(), []uint64{1, 2}, []uint64{1, 2, 3}, addrs))

	mem, err := m.LoadMember(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, mem.Member)
	require.Equal(t, []uint64{1, 2, 3}, mem.MemberAfterConsensus)
	require.Equal(t, addrs, mem.NodeAddrs)
}
