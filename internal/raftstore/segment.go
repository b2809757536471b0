package raftstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// segmentHeaderWidth is the fixed three-u64 header every segment file
// starts with: segment_id, start_index, pre_term.
const segmentHeaderWidth = 24

// SegmentHeader is the fixed header written once at segment creation.
type SegmentHeader struct {
	SegmentID  uint64
	StartIndex uint64
	PreTerm    uint64
}

// SegmentStore is a LogSegmentStore: one file holding a contiguous range
// of Raft log entries, named by segment id. Layout: SegmentHeader followed
// by a stream of framed LogEntry records. The offset index mapping a log
// index to its byte position is in-memory only, rebuilt by a sequential
// scan whenever the segment is opened.
type SegmentStore struct {
	mu          sync.Mutex
	f           *os.File
	path        string
	header      SegmentHeader
	recordCount uint64
	sealed      bool
	// offsets maps absolute log index -> byte offset of that record's
	// length prefix, for random reads.
	offsets map[uint64]int64
}

// SegmentPath returns the canonical path for segment id under dir.
func SegmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d", id))
}

// CreateSegment creates a new segment file at path and writes its header.
// It fails if a file already exists there.
func CreateSegment(path string, header SegmentHeader) (*SegmentStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, newErr(KindIO, "create segment file", err)
	}
	s := &SegmentStore{f: f, path: path, header: header, offsets: make(map[uint64]int64)}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.f.Sync(); err != nil {
		f.Close()
		return nil, newErr(KindIO, "fsync new segment", err)
	}
	return s, nil
}

// OpenSegment opens an existing segment file, reads its header, and
// rebuilds the in-memory offset index by scanning every record.
func OpenSegment(path string) (*SegmentStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, newErr(KindIO, "open segment file", err)
	}
	s := &SegmentStore{f: f, path: path, offsets: make(map[uint64]int64)}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *SegmentStore) writeHeader() error {
	var buf [segmentHeaderWidth]byte
	putU64(buf[0:8], s.header.SegmentID)
	putU64(buf[8:16], s.header.StartIndex)
	putU64(buf[16:24], s.header.PreTerm)
	if _, err := s.f.WriteAt(buf[:], 0); err != nil {
		return newErr(KindIO, "write segment header", err)
	}
	return nil
}

func (s *SegmentStore) readHeader() error {
	var buf [segmentHeaderWidth]byte
	if _, err := io.ReadFull(s.f, buf[:]); err != nil {
		return newErr(KindCorrupt, "short segment header", err)
	}
	s.header = SegmentHeader{
		SegmentID:  getU64(buf[0:8]),
		StartIndex: getU64(buf[8:16]),
		PreTerm:    getU64(buf[16:24]),
	}
	return nil
}

// rebuildIndex scans every framed record from just after the header,
// recovering cleanly from a torn trailing write (spec §4.1's tail-
// truncation recovery primitive): a short final record is dropped, not an
// error.
func (s *SegmentStore) rebuildIndex() error {
	r := NewFileMessageReader(s.f, segmentHeaderWidth)
	var count uint64
	for {
		pos := r.Offset()
		body, err := r.ReadNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		entry, err := decodeLogEntry(body)
		if err != nil {
			return err
		}
		s.offsets[entry.Index] = pos
		count++
	}
	s.recordCount = count
	return nil
}

// Header returns the segment's fixed header.
func (s *SegmentStore) Header() SegmentHeader {
	return s.header
}

// RecordCount reports how many entries are currently written.
func (s *SegmentStore) RecordCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordCount
}

// Sealed reports whether the segment has been sealed against further
// appends.
func (s *SegmentStore) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Seal marks the segment closed: no further Append calls will succeed.
// Reads remain available.
func (s *SegmentStore) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Append writes entry to the segment. entry.Index must equal
// start_index + record_count, the next contiguous slot; otherwise
// ErrIndexGap. The record body is written before the manager's caller
// calls Sync, so a crash mid-append leaves, at worst, a torn trailing
// record that recovery discards.
func (s *SegmentStore) Append(entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return newErr(KindInvariantViolation, "append to sealed segment", nil)
	}
	want := s.header.StartIndex + s.recordCount
	if entry.Index != want {
		return newErr(KindIndexGap, fmt.Sprintf("append index %d, want %d", entry.Index, want), nil)
	}
	w := NewFileMessageWriter(s.f)
	pos, err := w.Write(encodeLogEntry(entry))
	if err != nil {
		return err
	}
	s.offsets[entry.Index] = pos
	s.recordCount++
	return nil
}

// Sync flushes the segment file to stable storage. Callers group writes
// and call Sync explicitly (group-commit).
func (s *SegmentStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		return newErr(KindIO, "fsync segment", err)
	}
	return nil
}

// Read returns the entry stored at the given absolute log index.
func (s *SegmentStore) Read(index uint64) (LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.offsets[index]
	if !ok {
		return LogEntry{}, newErr(KindIndexOutOfRange, fmt.Sprintf("index %d not in segment %d", index, s.header.SegmentID), nil)
	}
	r := NewFileMessageReader(s.f, pos)
	body, err := r.ReadNext()
	if err != nil {
		return LogEntry{}, newErr(KindCorrupt, "segment record unreadable", err)
	}
	return decodeLogEntry(body)
}

// ReadRange returns entries in [lo, hi], inclusive, clipped to the bounds
// actually present in this segment.
func (s *SegmentStore) ReadRange(lo, hi uint64) ([]LogEntry, error) {
	s.mu.Lock()
	start := s.header.StartIndex
	end := start + s.recordCount // exclusive
	s.mu.Unlock()

	if lo < start {
		lo = start
	}
	if hi >= end {
		if end == 0 {
			return nil, nil
		}
		hi = end - 1
	}
	if lo > hi {
		return nil, nil
	}
	out := make([]LogEntry, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		e, err := s.Read(i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// TruncateFrom drops every entry with index >= index, truncating the
// underlying file. It fails with ErrIndexOutOfRange if index falls
// outside [start_index, start_index+record_count].
func (s *SegmentStore) TruncateFrom(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo := s.header.StartIndex
	hi := s.header.StartIndex + s.recordCount
	if index < lo || index > hi {
		return newErr(KindIndexOutOfRange, fmt.Sprintf("truncate index %d outside segment [%d,%d]", index, lo, hi), nil)
	}
	if index == hi {
		return nil // nothing to drop
	}
	pos, ok := s.offsets[index]
	if !ok {
		return newErr(KindIndexOutOfRange, fmt.Sprintf("index %d not in segment %d", index, s.header.SegmentID), nil)
	}
	if err := s.f.Truncate(pos); err != nil {
		return newErr(KindIO, "truncate segment file", err)
	}
	for i := index; i < hi; i++ {
		delete(s.offsets, i)
	}
	s.recordCount = index - s.header.StartIndex
	s.sealed = false
	return nil
}

// Close releases the segment's file handle. The segment must not be used
// afterward.
func (s *SegmentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Close(); err != nil {
		return newErr(KindIO, "close segment", err)
	}
	return nil
}

// Remove closes and deletes the segment's file.
func (s *SegmentStore) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil {
		return newErr(KindIO, "remove segment file", err)
	}
	return nil
}

func putU64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
