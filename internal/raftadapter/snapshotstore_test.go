package raftadapter

import (
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/rnacos/internal/raftstore"
)

func TestSnapshotStoreAdapter_CreateWriteOpen(t *testing.T) {
	dir := t.TempDir()
	mgr, err := raftstore.Open(dir)
	require.NoError(t, err)
	defer mgr.Close()

	adapter, err := NewSnapshotStoreAdapter(mgr, dir)
	require.NoError(t, err)

	cfg := raft.Configuration{Servers: []raft.Server{{ID: "node-1", Address: "127.0.0.1:8091"}}}
	sink, err := adapter.Create(1, 42, 3, cfg, 10, nil)
	require.NoError(t, err)

	_, err = sink.Write([]byte("snapshot-bytes"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	metas, err := adapter.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, uint64(42), metas[0].Index)
	require.Equal(t, uint64(3), metas[0].Term)

	meta, r, err := adapter.Open(metas[0].ID)
	require.NoError(t, err)
	defer r.Close()
	buf := make([]byte, len("snapshot-bytes"))
	_, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "snapshot-bytes", string(buf))
	require.Equal(t, uint64(42), meta.Index)
}

func TestSnapshotStoreAdapter_PrunesOlderSnapshots(t *testing.T) {
	dir := t.TempDir()
	mgr, err := raftstore.Open(dir)
	require.NoError(t, err)
	defer mgr.Close()

	adapter, err := NewSnapshotStoreAdapter(mgr, dir)
	require.NoError(t, err)

	for i := uint64(0); i < 3; i++ {
		sink, err := adapter.Create(1, 10+i, 1, raft.Configuration{}, 0, nil)
		require.NoError(t, err)
		_, err = sink.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, sink.Close())
	}

	metas, err := adapter.List()
	require.NoError(t, err)
	require.Len(t, metas, retainedSnapshots)
	require.Equal(t, uint64(12), metas[0].Index)
}
