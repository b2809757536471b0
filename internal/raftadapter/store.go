// Package raftadapter wires the durable raftstore package into the two
// interfaces hashicorp/raft's consensus engine actually consumes:
// raft.LogStore and raft.StableStore. It does not reimplement leader
// election, replication, or log matching — that is hashicorp/raft's job,
// reached only through these two named collaborators (spec's Non-goal on
// reimplementing consensus itself).
package raftadapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/easynet-cn/rnacos/internal/raftstore"
)

// defaultMaxSegmentEntries bounds how many log entries live in one segment
// file before Store rotates to a new one.
const defaultMaxSegmentEntries = 8192

// Store is a raft.LogStore and raft.StableStore backed by a raftstore
// Manager (the index/catalog) and a chain of raftstore SegmentStores (the
// log itself).
type Store struct {
	mgr     *raftstore.Manager
	logsDir string

	mu                sync.Mutex
	segments          []*raftstore.SegmentStore
	nextSegmentID     uint64
	maxSegmentEntries uint64
}

var (
	_ raft.LogStore    = (*Store)(nil)
	_ raft.StableStore = (*Store)(nil)
)

// Open opens (creating if needed) the raft data directory dataDir and
// returns a ready Store. maxSegmentEntries of 0 uses the default.
func Open(dataDir string, maxSegmentEntries uint64) (*Store, error) {
	mgr, err := raftstore.Open(dataDir)
	if err != nil {
		return nil, err
	}
	logsDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		mgr.Close()
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	info, err := mgr.LoadIndexInfo(context.Background())
	if err != nil {
		mgr.Close()
		return nil, err
	}

	if maxSegmentEntries == 0 {
		maxSegmentEntries = defaultMaxSegmentEntries
	}

	s := &Store{mgr: mgr, logsDir: logsDir, maxSegmentEntries: maxSegmentEntries}
	for _, lr := range info.RaftIndex.Logs {
		path := raftstore.SegmentPath(logsDir, lr.ID)
		if lr.MarkRemove {
			// Marked for removal by a prior run; a crash between the mark
			// flush and the file unlink is benign, so finish the unlink now
			// (ignore ErrNotExist: it may have completed before the crash).
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.closeSegments()
				mgr.Close()
				return nil, &raftstore.Error{Kind: raftstore.KindIO, Msg: "remove marked segment", Err: rmErr}
			}
			continue
		}
		var seg *raftstore.SegmentStore
		if _, statErr := os.Stat(path); statErr == nil {
			seg, err = raftstore.OpenSegment(path)
		} else if os.IsNotExist(statErr) && lr.RecordCount == 0 {
			// The catalog records this segment as empty (a fresh catalog's
			// segment 0) and no file exists yet: create it.
			seg, err = raftstore.CreateSegment(path, raftstore.SegmentHeader{SegmentID: lr.ID, StartIndex: lr.StartIndex, PreTerm: lr.PreTerm})
		} else {
			// Not marked for removal and recorded as holding entries, yet
			// the file is gone: on-disk corruption (or a deployment that
			// lost a file), never a benign crash mid-compaction.
			s.closeSegments()
			mgr.Close()
			return nil, &raftstore.Error{Kind: raftstore.KindCorrupt, Msg: fmt.Sprintf("segment %d missing but not marked for removal", lr.ID)}
		}
		if err != nil {
			s.closeSegments()
			mgr.Close()
			return nil, err
		}
		if lr.IsClose {
			seg.Seal()
		}
		if lr.ID >= s.nextSegmentID {
			s.nextSegmentID = lr.ID + 1
		}
		s.segments = append(s.segments, seg)
	}
	return s, nil
}

// Manager returns the underlying catalog manager, for collaborators (such
// as discovery's gossip bridge) that need to record node addresses
// alongside the log itself.
func (s *Store) Manager() *raftstore.Manager {
	return s.mgr
}

func (s *Store) closeSegments() {
	for _, seg := range s.segments {
		seg.Close()
	}
}

// Close releases every open segment file and the index file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSegments()
	return s.mgr.Close()
}

func (s *Store) activeLocked() *raftstore.SegmentStore {
	return s.segments[len(s.segments)-1]
}

// FirstIndex returns the first log index written, or 0 if the log is empty.
func (s *Store) FirstIndex() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.RecordCount() > 0 {
			return seg.Header().StartIndex, nil
		}
	}
	return 0, nil
}

// LastIndex returns the last log index written, or 0 if the log is empty.
func (s *Store) LastIndex() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.segments) - 1; i >= 0; i-- {
		seg := s.segments[i]
		if seg.RecordCount() > 0 {
			return seg.Header().StartIndex + seg.RecordCount() - 1, nil
		}
	}
	return 0, nil
}

func (s *Store) findSegmentLocked(index uint64) *raftstore.SegmentStore {
	for _, seg := range s.segments {
		start := seg.Header().StartIndex
		count := seg.RecordCount()
		if count == 0 {
			continue
		}
		if index >= start && index < start+count {
			return seg
		}
	}
	return nil
}

// GetLog fills out log for the given index.
func (s *Store) GetLog(index uint64, log *raft.Log) error {
	s.mu.Lock()
	seg := s.findSegmentLocked(index)
	s.mu.Unlock()
	if seg == nil {
		return raft.ErrLogNotFound
	}
	entry, err := seg.Read(index)
	if err != nil {
		if storeErr, ok := err.(*raftstore.Error); ok && storeErr.Kind == raftstore.KindIndexOutOfRange {
			return raft.ErrLogNotFound
		}
		return err
	}
	log.Index = entry.Index
	log.Term = entry.Term
	log.Type = raft.LogType(entry.PayloadType)
	log.Data = entry.PayloadBytes
	return nil
}

// StoreLog stores a single log entry.
func (s *Store) StoreLog(log *raft.Log) error {
	return s.StoreLogs([]*raft.Log{log})
}

// StoreLogs appends a batch of log entries, rotating to a new segment
// whenever the active one is sealed or has reached its entry cap, and
// fsyncing once per batch (group commit).
func (s *Store) StoreLogs(logs []*raft.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range logs {
		active := s.activeLocked()
		if active.Sealed() || active.RecordCount() >= s.maxSegmentEntries {
			if err := s.rotateLocked(l.Index, l.Term); err != nil {
				return err
			}
			active = s.activeLocked()
		}
		entry := raftstore.LogEntry{
			Index:        l.Index,
			Term:         l.Term,
			PayloadType:  raftstore.PayloadType(l.Type),
			PayloadBytes: l.Data,
		}
		if err := active.Append(entry); err != nil {
			return err
		}
	}
	if len(logs) > 0 {
		if err := s.activeLocked().Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) rotateLocked(nextIndex, nextTerm uint64) error {
	prev := s.activeLocked()
	prev.Seal()
	if err := prev.Sync(); err != nil {
		return err
	}

	id := s.nextSegmentID
	s.nextSegmentID++
	path := raftstore.SegmentPath(s.logsDir, id)
	seg, err := raftstore.CreateSegment(path, raftstore.SegmentHeader{
		SegmentID:  id,
		StartIndex: nextIndex,
		PreTerm:    nextTerm,
	})
	if err != nil {
		return err
	}
	s.segments = append(s.segments, seg)
	return s.flushCatalogLocked()
}

func (s *Store) flushCatalogLocked() error {
	return s.saveLogsLocked(nil)
}

// saveLogsLocked flushes the catalog against the current segment list,
// marking every segment id present in marked as MarkRemove. Callers use
// this to persist a removal intent before unlinking the segment file, so a
// crash between the two is benign (raftstore.LogRange.MarkRemove; Open
// finishes the unlink on restart).
func (s *Store) saveLogsLocked(marked map[uint64]bool) error {
	logs := make([]raftstore.LogRange, 0, len(s.segments))
	for _, seg := range s.segments {
		h := seg.Header()
		logs = append(logs, raftstore.LogRange{
			ID:          h.SegmentID,
			StartIndex:  h.StartIndex,
			PreTerm:     h.PreTerm,
			RecordCount: seg.RecordCount(),
			IsClose:     seg.Sealed(),
			MarkRemove:  marked[h.SegmentID],
		})
	}
	return s.mgr.SaveLogs(context.Background(), logs)
}

// DeleteRange removes every log entry with index in [min, max]. It supports
// the two patterns raft itself actually issues: trimming a contiguous run
// of fully-compacted segments from the front (after a snapshot), and
// truncating a suffix of the active segment (on a conflicting-entry
// overwrite). A partial removal from the front of a segment that still has
// entries beyond max is not supported; callers should align snapshot
// compaction at a segment boundary.
func (s *Store) DeleteRange(min, max uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*raftstore.SegmentStore, 0, len(s.segments))
	removed := make(map[uint64]bool)
	changed := false
	for _, seg := range s.segments {
		start := seg.Header().StartIndex
		count := seg.RecordCount()
		if count == 0 {
			kept = append(kept, seg)
			continue
		}
		end := start + count - 1

		switch {
		case max < start || min > end:
			kept = append(kept, seg)
		case min <= start && max >= end:
			// Mark-then-flush-then-delete: persist the removal intent
			// before unlinking the file, so a crash in between re-enters
			// the same state on restart and finishes the unlink rather
			// than silently losing the segment's entries.
			removed[seg.Header().SegmentID] = true
			if err := s.saveLogsLocked(removed); err != nil {
				delete(removed, seg.Header().SegmentID)
				return err
			}
			if err := seg.Remove(); err != nil {
				return err
			}
			changed = true
		case min > start && max >= end:
			if err := seg.TruncateFrom(min); err != nil {
				return err
			}
			kept = append(kept, seg)
			changed = true
		default:
			return fmt.Errorf("partial prefix truncation of segment %d not supported: %w", seg.Header().SegmentID, raftstore.ErrInvariantViolation)
		}
	}

	if len(kept) == 0 {
		id := s.nextSegmentID
		s.nextSegmentID++
		path := raftstore.SegmentPath(s.logsDir, id)
		seg, err := raftstore.CreateSegment(path, raftstore.SegmentHeader{
			SegmentID:  id,
			StartIndex: max + 1,
		})
		if err != nil {
			return err
		}
		kept = append(kept, seg)
		changed = true
	}

	s.segments = kept
	if changed {
		return s.flushCatalogLocked()
	}
	return nil
}
