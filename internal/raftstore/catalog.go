package raftstore

// LogRange describes one log segment's place in the overall sequence.
// Segments are disjoint and strictly monotonic in StartIndex.
type LogRange struct {
	ID          uint64
	StartIndex  uint64
	PreTerm     uint64
	RecordCount uint64
	IsClose     bool
	MarkRemove  bool
}

// EndIndex is the index one past this segment's last entry, i.e. the
// StartIndex a contiguous successor segment must use.
func (lr LogRange) EndIndex() uint64 { return lr.StartIndex + lr.RecordCount }

// SnapshotRange records a point-in-time snapshot's Raft metadata. The
// snapshot's bytes live in the snapshot store; only the metadata is kept
// in the catalog.
type SnapshotRange struct {
	ID                uint64
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
}

// RaftIndexDto is the in-memory catalog mirrored to the index file.
type RaftIndexDto struct {
	CurrentTerm          uint64
	VotedFor             uint64
	Member               []uint64
	MemberAfterConsensus []uint64
	NodeAddrs            map[uint64]string
	Logs                 []LogRange
	Snapshots            []SnapshotRange
	StableKV             []stableKV
}

// Clone returns an independent copy suitable for handing to callers; no
// caller may observe or mutate the manager's own copy (spec §5: read-only
// catalog snapshots are by-value copies).
func (idx RaftIndexDto) Clone() RaftIndexDto {
	out := RaftIndexDto{
		CurrentTerm: idx.CurrentTerm,
		VotedFor:    idx.VotedFor,
	}
	out.Member = append([]uint64(nil), idx.Member...)
	out.MemberAfterConsensus = append([]uint64(nil), idx.MemberAfterConsensus...)
	out.NodeAddrs = make(map[uint64]string, len(idx.NodeAddrs))
	for k, v := range idx.NodeAddrs {
		out.NodeAddrs[k] = v
	}
	out.Logs = append([]LogRange(nil), idx.Logs...)
	out.Snapshots = append([]SnapshotRange(nil), idx.Snapshots...)
	out.StableKV = append([]stableKV(nil), idx.StableKV...)
	return out
}

// emptyCatalog is the catalog written on first boot: a single, open,
// empty segment with id 0 and no membership/snapshots.
func emptyCatalog() RaftIndexDto {
	return RaftIndexDto{
		NodeAddrs: make(map[uint64]string),
		Logs: []LogRange{
			{ID: 0, StartIndex: 0, PreTerm: 0, RecordCount: 0, IsClose: false, MarkRemove: false},
		},
	}
}

// validateLogs checks invariants 1-2 (contiguity, only the last segment
// may be unsealed) and invariant 3 (logs/snapshot alignment) against the
// given snapshot list.
func validateLogs(logs []LogRange, snapshots []SnapshotRange) error {
	for i := 1; i < len(logs); i++ {
		prev, cur := logs[i-1], logs[i]
		if cur.StartIndex != prev.EndIndex() {
			return newErr(KindInvariantViolation, "log segments are not contiguous", nil)
		}
	}
	for i := 0; i < len(logs)-1; i++ {
		if !logs[i].IsClose {
			return newErr(KindInvariantViolation, "only the last segment may be open", nil)
		}
	}
	if len(logs) > 0 && len(snapshots) > 0 {
		last := snapshots[len(snapshots)-1]
		if logs[0].StartIndex < last.LastIncludedIndex+1 {
			return newErr(KindInvariantViolation, "first segment overlaps the latest snapshot", nil)
		}
	}
	return nil
}

// validateLastApplied checks invariant 6: last_applied_log must not exceed
// the highest stored entry index, and must not fall below the latest
// snapshot's last_included_index.
func validateLastApplied(lastApplied uint64, logs []LogRange, snapshots []SnapshotRange) error {
	if len(snapshots) > 0 {
		last := snapshots[len(snapshots)-1]
		if lastApplied < last.LastIncludedIndex {
			return newErr(KindInvariantViolation, "last_applied_log precedes latest snapshot", nil)
		}
	}
	if len(logs) > 0 {
		highest := logs[len(logs)-1].EndIndex()
		if highest > 0 && lastApplied > highest-1 {
			return newErr(KindInvariantViolation, "last_applied_log exceeds highest stored entry", nil)
		}
	}
	return nil
}
