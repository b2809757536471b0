package raftstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSegment(t *testing.T, startIndex uint64) *SegmentStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "0")
	s, err := CreateSegment(path, SegmentHeader{SegmentID: 0, StartIndex: startIndex, PreTerm: 0})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSegmentStore_AppendAndRead(t *testing.T) {
	s := newTestSegment(t, 10)

	for i := uint64(0); i < 5; i++ {
		err := s.Append(LogEntry{Index: 10 + i, Term: 1, PayloadBytes: []byte("v")})
		require.NoError(t, err)
	}
	require.NoError(t, s.Sync())
	require.Equal(t, uint64(5), s.RecordCount())

	e, err := s.Read(12)
	require.NoError(t, err)
	require.Equal(t, uint64(12), e.Index)
	require.Equal(t, uint64(1), e.Term)

	entries, err := s.ReadRange(11, 13)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, uint64(11), entries[0].Index)
	require.Equal(t, uint64(13), entries[2].Index)
}

func TestSegmentStore_AppendRejectsGap(t *testing.T) {
	s := newTestSegment(t, 0)
	require.NoError(t, s.Append(LogEntry{Index: 0}))

	err := s.Append(LogEntry{Index: 5})
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindIndexGap, storeErr.Kind)
}

func TestSegmentStore_SealRejectsAppend(t *testing.T) {
	s := newTestSegment(t, 0)
	require.NoError(t, s.Append(LogEntry{Index: 0}))
	s.Seal()
	require.True(t, s.Sealed())

	err := s.Append(LogEntry{Index: 1})
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindInvariantViolation, storeErr.Kind)
}

func TestSegmentStore_TruncateFrom(t *testing.T) {
	s := newTestSegment(t, 0)
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.Append(LogEntry{Index: i, Term: 1}))
	}
	require.NoError(t, s.Sync())

	require.NoError(t, s.TruncateFrom(3))
	require.Equal(t, uint64(3), s.RecordCount())

	_, err := s.Read(3)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindIndexOutOfRange, storeErr.Kind)

	// The truncated segment accepts appends again, starting at the
	// truncation point.
	require.NoError(t, s.Append(LogEntry{Index: 3, Term: 2}))
	e, err := s.Read(3)
	require.NoError(t, err)
	require.Equal(t, uint64(2), e.Term)
}

func TestSegmentStore_ReopenRebuildsIndexAndDropsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0")
	s, err := CreateSegment(path, SegmentHeader{SegmentID: 7, StartIndex: 100, PreTerm: 3})
	require.NoError(t, err)
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, s.Append(LogEntry{Index: 100 + i, Term: 3, PayloadBytes: []byte{byte(i)}}))
	}
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	// Reopen, append one more entry without calling Sync, then simulate a
	// crash that tears off the tail of the unsynced record.
	s2, err := OpenSegment(path)
	require.NoError(t, err)
	require.Equal(t, SegmentHeader{SegmentID: 7, StartIndex: 100, PreTerm: 3}, s2.Header())
	require.Equal(t, uint64(3), s2.RecordCount())

	require.NoError(t, s2.Append(LogEntry{Index: 103, Term: 3, PayloadBytes: []byte("unsynced-entry-body")}))
	require.NoError(t, s2.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-5))

	s3, err := OpenSegment(path)
	require.NoError(t, err)
	defer s3.Close()
	require.Equal(t, uint64(3), s3.RecordCount())
	_, err = s3.Read(103)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, KindIndexOutOfRange, storeErr.Kind)
}
