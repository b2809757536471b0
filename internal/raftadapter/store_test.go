package raftadapter

import (
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

func TestStore_EmptyLogBounds(t *testing.T) {
	s, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer s.Close()

	first, err := s.FirstIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(0), last)
}

func TestStore_StoreAndGetLog(t *testing.T) {
	s, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer s.Close()

	logs := []*raft.Log{
		{Index: 0, Term: 1, Type: raft.LogCommand, Data: []byte("a")},
		{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte("b")},
	}
	require.NoError(t, s.StoreLogs(logs))

	var got raft.Log
	require.NoError(t, s.GetLog(1, &got))
	require.Equal(t, uint64(1), got.Index)
	require.Equal(t, uint64(1), got.Term)
	require.Equal(t, []byte("b"), got.Data)

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(1), last)
}

func TestStore_GetLogMissingReturnsErrLogNotFound(t *testing.T) {
	s, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer s.Close()

	var got raft.Log
	err = s.GetLog(42, &got)
	require.ErrorIs(t, err, raft.ErrLogNotFound)
}

func TestStore_RotatesSegmentsAndSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 2) // force rotation every 2 entries
	require.NoError(t, err)

	for i := uint64(0); i < 6; i++ {
		require.NoError(t, s.StoreLog(&raft.Log{Index: i, Term: 1, Type: raft.LogCommand, Data: []byte{byte(i)}}))
	}
	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)
	require.NoError(t, s.Close())

	s2, err := Open(dir, 2)
	require.NoError(t, err)
	defer s2.Close()

	last2, err := s2.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(5), last2)

	var got raft.Log
	require.NoError(t, s2.GetLog(4, &got))
	require.Equal(t, []byte{4}, got.Data)
}

func TestStore_DeleteRangeTruncatesSuffix(t *testing.T) {
	s, err := Open(t.TempDir(), 100)
	require.NoError(t, err)
	defer s.Close()

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.StoreLog(&raft.Log{Index: i, Term: 1, Type: raft.LogCommand}))
	}
	require.NoError(t, s.DeleteRange(3, 4))

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)

	var got raft.Log
	err = s.GetLog(3, &got)
	require.ErrorIs(t, err, raft.ErrLogNotFound)
}

func TestStore_DeleteRangeDropsWholeSegmentsFromFront(t *testing.T) {
	s, err := Open(t.TempDir(), 2)
	require.NoError(t, err)
	defer s.Close()

	for i := uint64(0); i < 6; i++ {
		require.NoError(t, s.StoreLog(&raft.Log{Index: i, Term: 1, Type: raft.LogCommand}))
	}

	// Drop the first two (sealed, 2-entry) segments entirely.
	require.NoError(t, s.DeleteRange(0, 3))

	first, err := s.FirstIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(4), first)

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)
}

func TestStore_StableStoreRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetUint64([]byte("CurrentTerm"), 9))
	v, err := s.GetUint64([]byte("CurrentTerm"))
	require.NoError(t, err)
	require.Equal(t, uint64(9), v)

	require.NoError(t, s.Set([]byte("LastVoteCand"), []byte("node-1")))
	got, err := s.Get([]byte("LastVoteCand"))
	require.NoError(t, err)
	require.Equal(t, []byte("node-1"), got)

	missing, err := s.Get([]byte("nonexistent"))
	require.NoError(t, err)
	require.Nil(t, missing)
}
