package raftstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalog_EncodeDecodeRoundTrip(t *testing.T) {
	idx := RaftIndexDto{
		CurrentTerm:          7,
		VotedFor:             2,
		Member:               []uint64{1, 2, 3},
		MemberAfterConsensus: []uint64{1, 2, 3, 4},
		NodeAddrs:            map[uint64]string{1: "10.0.0.1:8091", 2: "10.0.0.2:8091"},
		Logs: []LogRange{
			{ID: 0, StartIndex: 0, PreTerm: 0, RecordCount: 100, IsClose: true},
			{ID: 1, StartIndex: 100, PreTerm: 5, RecordCount: 10, IsClose: false},
		},
		Snapshots: []SnapshotRange{{ID: 0, LastIncludedIndex: 50, LastIncludedTerm: 3}},
		StableKV:  []stableKV{{Key: "vote", Value: []byte{1, 2, 3}}},
	}

	body := encodeCatalog(idx)
	got, err := decodeCatalog(body)
	require.NoError(t, err)

	require.Equal(t, idx.CurrentTerm, got.CurrentTerm)
	require.Equal(t, idx.VotedFor, got.VotedFor)
	require.Equal(t, idx.Member, got.Member)
	require.Equal(t, idx.MemberAfterConsensus, got.MemberAfterConsensus)
	require.Equal(t, idx.NodeAddrs, got.NodeAddrs)
	require.Equal(t, idx.Logs, got.Logs)
	require.Equal(t, idx.Snapshots, got.Snapshots)
	require.Equal(t, idx.StableKV, got.StableKV)
}

func TestCatalog_EncodeIsDeterministic(t *testing.T) {
	idx := RaftIndexDto{NodeAddrs: map[uint64]string{5: "a", 1: "b", 3: "c"}}
	require.Equal(t, encodeCatalog(idx), encodeCatalog(idx))
}

func TestValidateLogs_RejectsGap(t *testing.T) {
	logs := []LogRange{
		{ID: 0, StartIndex: 0, RecordCount: 10, IsClose: true},
		{ID: 1, StartIndex: 20, RecordCount: 5},
	}
	err := validateLogs(logs, nil)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestValidateLogs_RejectsNonLastUnsealed(t *testing.T) {
	logs := []LogRange{
		{ID: 0, StartIndex: 0, RecordCount: 10, IsClose: false},
		{ID: 1, StartIndex: 10, RecordCount: 5, IsClose: false},
	}
	err := validateLogs(logs, nil)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestValidateLogs_RejectsSnapshotOverlap(t *testing.T) {
	logs := []LogRange{{ID: 0, StartIndex: 40, RecordCount: 10}}
	snapshots := []SnapshotRange{{ID: 0, LastIncludedIndex: 50}}
	err := validateLogs(logs, snapshots)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestValidateLogs_AcceptsContiguousClosedThenOpen(t *testing.T) {
	logs := []LogRange{
		{ID: 0, StartIndex: 0, RecordCount: 10, IsClose: true},
		{ID: 1, StartIndex: 10, RecordCount: 5, IsClose: false},
	}
	require.NoError(t, validateLogs(logs, nil))
}

func TestValidateLastApplied_RejectsBelowSnapshot(t *testing.T) {
	snapshots := []SnapshotRange{{LastIncludedIndex: 100}}
	err := validateLastApplied(50, nil, snapshots)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestValidateLastApplied_RejectsAboveHighestStored(t *testing.T) {
	logs := []LogRange{{StartIndex: 0, RecordCount: 10}}
	err := validateLastApplied(50, logs, nil)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestRaftIndexDto_CloneIsIndependent(t *testing.T) {
	idx := emptyCatalog()
	idx.NodeAddrs[1] = "a"
	idx.Member = []uint64{1}

	clone := idx.Clone()
	clone.NodeAddrs[1] = "mutated"
	clone.Member[0] = 99

	require.Equal(t, "a", idx.NodeAddrs[1])
	require.Equal(t, uint64(1), idx.Member[0])
}
