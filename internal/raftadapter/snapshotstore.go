package raftadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/easynet-cn/rnacos/internal/raftstore"
)

// retainedSnapshots mirrors the teacher's choice of keeping exactly one
// live snapshot on disk at a time (distributed.go's maxSnapshotRetained).
const retainedSnapshots = 1

// SnapshotStoreAdapter is a raft.SnapshotStore backed by raftstore's
// SnapshotStore for the snapshot bytes and the manager's catalog for
// snapshot metadata (spec §4.3).
type SnapshotStoreAdapter struct {
	mgr   *raftstore.Manager
	bytes *raftstore.SnapshotStore
	dir   string

	mu     sync.Mutex
	nextID uint64
}

var _ raft.SnapshotStore = (*SnapshotStoreAdapter)(nil)

type snapshotMeta struct {
	ID                 string
	Index              uint64
	Term               uint64
	ConfigurationIndex uint64
	Configuration      raft.Configuration
	Version            raft.SnapshotVersion
	Size               int64
}

// NewSnapshotStoreAdapter opens the snapshot directory under dataDir and
// resumes the id counter from the catalog's recorded snapshots.
func NewSnapshotStoreAdapter(mgr *raftstore.Manager, dataDir string) (*SnapshotStoreAdapter, error) {
	dir := filepath.Join(dataDir, "snapshots")
	store, err := raftstore.NewSnapshotStore(dir)
	if err != nil {
		return nil, err
	}
	a := &SnapshotStoreAdapter{mgr: mgr, bytes: store, dir: dir}

	info, err := mgr.LoadIndexInfo(context.Background())
	if err != nil {
		return nil, err
	}
	for _, sr := range info.RaftIndex.Snapshots {
		if sr.ID >= a.nextID {
			a.nextID = sr.ID + 1
		}
	}
	return a, nil
}

func (a *SnapshotStoreAdapter) metaPath(id uint64) string {
	return filepath.Join(a.dir, fmt.Sprintf("%d.meta.json", id))
}

// Create begins a new snapshot install, returning a sink the FSM writes its
// state into.
func (a *SnapshotStoreAdapter) Create(version raft.SnapshotVersion, index, term uint64, configuration raft.Configuration, configurationIndex uint64, _ raft.Transport) (raft.SnapshotSink, error) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	w, err := a.bytes.BeginInstall(id)
	if err != nil {
		return nil, err
	}
	return &snapshotSink{
		adapter: a,
		w:       w,
		id:      id,
		meta: snapshotMeta{
			ID:                 strconv.FormatUint(id, 10),
			Index:              index,
			Term:               term,
			Configuration:      configuration,
			ConfigurationIndex: configurationIndex,
			Version:            version,
		},
	}, nil
}

// List returns known snapshots, most recent first, as raft expects.
func (a *SnapshotStoreAdapter) List() ([]*raft.SnapshotMeta, error) {
	info, err := a.mgr.LoadIndexInfo(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]*raft.SnapshotMeta, 0, len(info.RaftIndex.Snapshots))
	for i := len(info.RaftIndex.Snapshots) - 1; i >= 0; i-- {
		sr := info.RaftIndex.Snapshots[i]
		m, err := a.readMeta(sr.ID)
		if err != nil {
			continue // a snapshot whose sidecar metadata is gone is simply skipped
		}
		out = append(out, m)
	}
	return out, nil
}

// Open returns a snapshot's metadata and a reader over its bytes.
func (a *SnapshotStoreAdapter) Open(id string) (*raft.SnapshotMeta, io.ReadCloser, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}
	m, err := a.readMeta(n)
	if err != nil {
		return nil, nil, err
	}
	r, err := a.bytes.Read(n)
	if err != nil {
		return nil, nil, err
	}
	return m, r, nil
}

func (a *SnapshotStoreAdapter) readMeta(id uint64) (*raft.SnapshotMeta, error) {
	b, err := os.ReadFile(a.metaPath(id))
	if err != nil {
		return nil, err
	}
	var sm snapshotMeta
	if err := json.Unmarshal(b, &sm); err != nil {
		return nil, err
	}
	return &raft.SnapshotMeta{
		Version:            sm.Version,
		ID:                 sm.ID,
		Index:              sm.Index,
		Term:               sm.Term,
		Configuration:      sm.Configuration,
		ConfigurationIndex: sm.ConfigurationIndex,
		Size:               sm.Size,
	}, nil
}

type snapshotSink struct {
	adapter *SnapshotStoreAdapter
	w       *raftstore.SnapshotWriter
	id      uint64
	meta    snapshotMeta
	size    int64
}

func (s *snapshotSink) Write(p []byte) (int, error) {
	if err := s.w.WriteChunk(p); err != nil {
		return 0, err
	}
	s.size += int64(len(p))
	return len(p), nil
}

// Close finalizes the staged snapshot, persists its sidecar metadata,
// records it in the catalog, and prunes older snapshots beyond the
// retention count.
func (s *snapshotSink) Close() error {
	if err := s.w.Finalize(); err != nil {
		return err
	}
	s.meta.Size = s.size
	b, err := json.Marshal(s.meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.adapter.metaPath(s.id), b, 0644); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}

	ctx := context.Background()
	info, err := s.adapter.mgr.LoadIndexInfo(ctx)
	if err != nil {
		return err
	}
	snapshots := append(info.RaftIndex.Snapshots, raftstore.SnapshotRange{
		ID:                s.id,
		LastIncludedIndex: s.meta.Index,
		LastIncludedTerm:  s.meta.Term,
	})
	var pruned []raftstore.SnapshotRange
	if len(snapshots) > retainedSnapshots {
		toDrop := snapshots[:len(snapshots)-retainedSnapshots]
		pruned = snapshots[len(snapshots)-retainedSnapshots:]
		for _, sr := range toDrop {
			s.adapter.bytes.Delete(sr.ID)
			os.Remove(s.adapter.metaPath(sr.ID))
		}
	} else {
		pruned = snapshots
	}
	return s.adapter.mgr.SaveSnapshots(ctx, pruned)
}

// Cancel discards a staged-but-unfinished snapshot.
func (s *snapshotSink) Cancel() error {
	return s.w.Abort()
}

// ID returns the snapshot's string identifier, as raft.SnapshotSink requires.
func (s *snapshotSink) ID() string {
	return s.meta.ID
}
