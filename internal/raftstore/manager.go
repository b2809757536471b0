package raftstore

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

// lastAppliedWidth is the fixed width, in bytes, of the last_applied_log
// header at the start of the index file.
const lastAppliedWidth = 8

// State is the manager's lifecycle state (spec §4.4).
type State int32

const (
	StateUninit State = iota
	StateReady
	StateFailed
)

// IndexInfo is the response to LoadIndexInfo.
type IndexInfo struct {
	RaftIndex      RaftIndexDto
	LastAppliedLog uint64
}

// HardState is the response to LoadHardState.
type HardState struct {
	CurrentTerm uint64
	VotedFor    uint64
}

// Membership is the response to LoadMember.
type Membership struct {
	Member               []uint64
	MemberAfterConsensus []uint64
	NodeAddrs            map[uint64]string
}

// Manager is the RaftIndexManager: it owns the index file's open handle
// and the in-memory RaftIndexDto, and serializes every mutation through a
// single goroutine acting as the file's sole owner (the Go stand-in for
// the original's actix actor and mailbox).
type Manager struct {
	path  string
	f     *os.File
	state int32 // atomic State

	catalog     RaftIndexDto
	lastApplied uint64

	mailbox chan job
	done    chan struct{}
}

type job struct {
	req  any
	resp chan jobResult
}

type jobResult struct {
	val any
	err error
}

// request/response types mirror the typed-request, typed-response contract
// spec §4.4 describes, and the original's RaftIndexRequest/RaftIndexResponse
// enum one-for-one.
type (
	reqLoadIndexInfo     struct{}
	reqLoadHardState     struct{}
	reqLoadMember        struct{}
	reqGetTargetAddr     struct{ ID uint64 }
	reqSaveLogs          struct{ Logs []LogRange }
	reqSaveSnapshots     struct{ Snapshots []SnapshotRange }
	reqSaveLastAppliedLog struct{ N uint64 }
	reqSaveMember        struct {
		Member               []uint64
		MemberAfterConsensus []uint64
		NodeAddr             map[uint64]string
		HasNodeAddr          bool
	}
	reqSaveNodeAddr struct{ NodeAddr map[uint64]string }
	reqAddNodeAddr  struct {
		ID   uint64
		Addr string
	}
	reqSaveHardState struct {
		CurrentTerm uint64
		VotedFor    uint64
	}
	reqSaveStableKV struct {
		Key   string
		Value []byte
	}
)

// Open opens (creating if absent) the index file under dir/index and
// returns a Manager in the Ready state, or an error if the existing file
// is corrupt. A zero-length file is treated as a fresh catalog (spec
// §3 Lifecycle).
func Open(dir string) (*Manager, error) {
	path := filepath.Join(dir, "index")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, newErr(KindIO, "open index file", err)
	}

	m := &Manager{path: path, f: f, mailbox: make(chan job, 32), done: make(chan struct{})}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr(KindIO, "stat index file", err)
	}

	if fi.Size() == 0 {
		m.catalog = emptyCatalog()
		m.lastApplied = 0
		if err := m.writeLastAppliedLocked(0); err != nil {
			f.Close()
			return nil, err
		}
		if err := m.writeCatalogLocked(m.catalog); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		lastApplied, catalog, err := loadIndexFile(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := validateLogs(catalog.Logs, catalog.Snapshots); err != nil {
			f.Close()
			return nil, newErr(KindCorrupt, "loaded catalog fails invariants", err)
		}
		if err := validateLastApplied(lastApplied, catalog.Logs, catalog.Snapshots); err != nil {
			f.Close()
			return nil, newErr(KindCorrupt, "loaded last_applied_log fails invariants", err)
		}
		m.catalog = catalog
		m.lastApplied = lastApplied
	}

	atomic.StoreInt32(&m.state, int32(StateReady))
	go m.run()
	return m, nil
}

func loadIndexFile(f *os.File) (uint64, RaftIndexDto, error) {
	var hdr [lastAppliedWidth]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return 0, RaftIndexDto{}, newErr(KindCorrupt, "short last_applied_log header", err)
	}
	lastApplied := binary.BigEndian.Uint64(hdr[:])

	r := NewFileMessageReader(f, lastAppliedWidth)
	body, err := r.ReadNext()
	if err == io.EOF {
		return 0, RaftIndexDto{}, newErr(KindCorrupt, "catalog record missing or truncated", nil)
	}
	if err != nil {
		return 0, RaftIndexDto{}, err
	}
	catalog, err := decodeCatalog(body)
	if err != nil {
		return 0, RaftIndexDto{}, err
	}
	return lastApplied, catalog, nil
}

// State reports the manager's current lifecycle state.
func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

func (m *Manager) writeLastAppliedLocked(n uint64) error {
	var b [lastAppliedWidth]byte
	binary.BigEndian.PutUint64(b[:], n)
	if _, err := m.f.WriteAt(b[:], 0); err != nil {
		return newErr(KindIO, "write last_applied_log header", err)
	}
	if err := m.f.Sync(); err != nil {
		return newErr(KindIO, "fsync last_applied_log header", err)
	}
	return nil
}

// writeCatalogLocked truncates the catalog region before rewriting it so a
// crash mid-write is always observable as a short record (EOF) on the next
// load, never as stale trailing bytes from a previous, longer record.
func (m *Manager) writeCatalogLocked(idx RaftIndexDto) error {
	if err := m.f.Truncate(lastAppliedWidth); err != nil {
		return newErr(KindIO, "truncate catalog region", err)
	}
	body := encodeCatalog(idx)
	var hdr [lenPrefixWidth]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	buf := append(hdr[:], body...)
	if _, err := m.f.WriteAt(buf, lastAppliedWidth); err != nil {
		return newErr(KindIO, "write catalog record", err)
	}
	if err := m.f.Sync(); err != nil {
		return newErr(KindIO, "fsync catalog record", err)
	}
	return nil
}

func (m *Manager) fail(err error) {
	zap.L().Named("raftstore").Error("manager entering failed state", zap.Error(err))
	atomic.StoreInt32(&m.state, int32(StateFailed))
}

func (m *Manager) run() {
	defer close(m.done)
	for j := range m.mailbox {
		val, err := m.handle(j.req)
		j.resp <- jobResult{val, err}
	}
}

func (m *Manager) submit(ctx context.Context, req any) (any, error) {
	if m.State() == StateFailed {
		return nil, newErr(KindIO, "manager is in Failed state", nil)
	}
	j := job{req: req, resp: make(chan jobResult, 1)}
	select {
	case m.mailbox <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) handle(req any) (any, error) {
	switch r := req.(type) {
	case reqLoadIndexInfo:
		return IndexInfo{RaftIndex: m.catalog.Clone(), LastAppliedLog: m.lastApplied}, nil

	case reqLoadHardState:
		return HardState{CurrentTerm: m.catalog.CurrentTerm, VotedFor: m.catalog.VotedFor}, nil

	case reqLoadMember:
		clone := m.catalog.Clone()
		return Membership{
			Member:               clone.Member,
			MemberAfterConsensus: clone.MemberAfterConsensus,
			NodeAddrs:            clone.NodeAddrs,
		}, nil

	case reqGetTargetAddr:
		addr, ok := m.catalog.NodeAddrs[r.ID]
		if !ok {
			return "", nil
		}
		return addr, nil

	case reqSaveLastAppliedLog:
		if r.N < m.lastApplied {
			return nil, newErr(KindInvariantViolation, "last_applied_log must be monotonic", nil)
		}
		if err := validateLastApplied(r.N, m.catalog.Logs, m.catalog.Snapshots); err != nil {
			return nil, err
		}
		if err := m.writeLastAppliedLocked(r.N); err != nil {
			m.fail(err)
			return nil, err
		}
		m.lastApplied = r.N
		return nil, nil

	case reqSaveLogs:
		next := m.catalog.Clone()
		next.Logs = r.Logs
		if err := validateLogs(next.Logs, next.Snapshots); err != nil {
			return nil, err
		}
		if err := validateLastApplied(m.lastApplied, next.Logs, next.Snapshots); err != nil {
			return nil, err
		}
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	case reqSaveSnapshots:
		next := m.catalog.Clone()
		next.Snapshots = r.Snapshots
		if err := validateLogs(next.Logs, next.Snapshots); err != nil {
			return nil, err
		}
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	case reqSaveMember:
		next := m.catalog.Clone()
		next.Member = r.Member
		next.MemberAfterConsensus = r.MemberAfterConsensus
		if r.HasNodeAddr {
			next.NodeAddrs = r.NodeAddr
		}
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	case reqSaveNodeAddr:
		next := m.catalog.Clone()
		next.NodeAddrs = r.NodeAddr
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	case reqAddNodeAddr:
		next := m.catalog.Clone()
		next.NodeAddrs[r.ID] = r.Addr
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	case reqSaveHardState:
		if r.CurrentTerm < m.catalog.CurrentTerm {
			return nil, newErr(KindInvariantViolation, "current_term must be monotonic", nil)
		}
		next := m.catalog.Clone()
		next.CurrentTerm = r.CurrentTerm
		next.VotedFor = r.VotedFor
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	case reqSaveStableKV:
		next := m.catalog.Clone()
		found := false
		for i := range next.StableKV {
			if next.StableKV[i].Key == r.Key {
				next.StableKV[i].Value = r.Value
				found = true
				break
			}
		}
		if !found {
			next.StableKV = append(next.StableKV, stableKV{Key: r.Key, Value: r.Value})
		}
		if err := m.writeCatalogLocked(next); err != nil {
			m.fail(err)
			return nil, err
		}
		m.catalog = next
		return nil, nil

	default:
		return nil, newErr(KindIO, "unknown request type", nil)
	}
}

// LoadIndexInfo returns the current catalog and last_applied_log, served
// from the manager's in-memory cache.
func (m *Manager) LoadIndexInfo(ctx context.Context) (IndexInfo, error) {
	v, err := m.submit(ctx, reqLoadIndexInfo{})
	if err != nil {
		return IndexInfo{}, err
	}
	return v.(IndexInfo), nil
}

// LoadHardState returns the current Raft hard state.
func (m *Manager) LoadHardState(ctx context.Context) (HardState, error) {
	v, err := m.submit(ctx, reqLoadHardState{})
	if err != nil {
		return HardState{}, err
	}
	return v.(HardState), nil
}

// LoadMember returns the current membership configuration.
func (m *Manager) LoadMember(ctx context.Context) (Membership, error) {
	v, err := m.submit(ctx, reqLoadMember{})
	if err != nil {
		return Membership{}, err
	}
	return v.(Membership), nil
}

// GetTargetAddr returns the network address registered for a node id, or
// ("", false) if unknown.
func (m *Manager) GetTargetAddr(ctx context.Context, id uint64) (string, bool, error) {
	v, err := m.submit(ctx, reqGetTargetAddr{ID: id})
	if err != nil {
		return "", false, err
	}
	addr := v.(string)
	return addr, addr != "", nil
}

// SaveLastAppliedLog durably records the highest applied log index. It
// fails if n is less than the previously saved value.
func (m *Manager) SaveLastAppliedLog(ctx context.Context, n uint64) error {
	_, err := m.submit(ctx, reqSaveLastAppliedLog{N: n})
	return err
}

// SaveLogs replaces the segment list, after validating it against the
// catalog invariants. On failure the catalog is left unchanged.
func (m *Manager) SaveLogs(ctx context.Context, logs []LogRange) error {
	_, err := m.submit(ctx, reqSaveLogs{Logs: logs})
	return err
}

// SaveSnapshots replaces the snapshot list.
func (m *Manager) SaveSnapshots(ctx context.Context, snapshots []SnapshotRange) error {
	_, err := m.submit(ctx, reqSaveSnapshots{Snapshots: snapshots})
	return err
}

// SaveMember atomically updates membership, and optionally the full node
// address map in the same catalog rewrite.
func (m *Manager) SaveMember(ctx context.Context, member, memberAfterConsensus []uint64, nodeAddr map[uint64]string) error {
	_, err := m.submit(ctx, reqSaveMember{
		Member:               member,
		MemberAfterConsensus: memberAfterConsensus,
		NodeAddr:             nodeAddr,
		HasNodeAddr:          nodeAddr != nil,
	})
	return err
}

// SaveNodeAddr replaces the entire node address map.
func (m *Manager) SaveNodeAddr(ctx context.Context, nodeAddr map[uint64]string) error {
	_, err := m.submit(ctx, reqSaveNodeAddr{NodeAddr: nodeAddr})
	return err
}

// AddNodeAddr upserts a single node's address.
func (m *Manager) AddNodeAddr(ctx context.Context, id uint64, addr string) error {
	_, err := m.submit(ctx, reqAddNodeAddr{ID: id, Addr: addr})
	return err
}

// SaveHardState persists the Raft hard state. It fails if current_term
// would decrease.
func (m *Manager) SaveHardState(ctx context.Context, currentTerm, votedFor uint64) error {
	_, err := m.submit(ctx, reqSaveHardState{CurrentTerm: currentTerm, VotedFor: votedFor})
	return err
}

// SaveStableKV upserts an arbitrary key/value pair in the catalog's
// stable-storage section, backing raft.StableStore's generic Get/Set API
// (SPEC_FULL.md §5.5) independently of the current_term/voted_for fields
// LoadHardState/SaveHardState expose.
func (m *Manager) SaveStableKV(ctx context.Context, key string, value []byte) error {
	_, err := m.submit(ctx, reqSaveStableKV{Key: key, Value: value})
	return err
}

// LoadStableValue returns the value stored for key, if any.
func (m *Manager) LoadStableValue(ctx context.Context, key string) ([]byte, bool, error) {
	info, err := m.LoadIndexInfo(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, kv := range info.RaftIndex.StableKV {
		if kv.Key == key {
			return kv.Value, true, nil
		}
	}
	return nil, false, nil
}

// Close stops the manager's actor loop and closes the index file handle.
func (m *Manager) Close() error {
	close(m.mailbox)
	<-m.done
	if err := m.f.Close(); err != nil {
		return newErr(KindIO, "close index file", err)
	}
	return nil
}
