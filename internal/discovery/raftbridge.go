package discovery

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/easynet-cn/rnacos/internal/collab"
)

// nodeAddrRecorder is the subset of *raftstore.Manager a RaftBridge needs to
// persist gossip-discovered addresses, named here so this package doesn't
// depend on internal/raftstore directly.
type nodeAddrRecorder interface {
	AddNodeAddr(ctx context.Context, id uint64, addr string) error
}

// RaftBridge adapts serf Join/Leave gossip events onto the consensus
// engine: a joining node becomes a raft voter, a leaving node is removed
// from the configuration. It only ever proposes membership changes; on
// restart the catalog's own recorded membership is authoritative, gossip
// never overrides it (spec's node_addrs Open Question, resolved in
// DESIGN.md).
type RaftBridge struct {
	Consensus collab.ConsensusEngine
	NodeAddrs nodeAddrRecorder
	Logger    *zap.Logger
}

var _ Handler = (*RaftBridge)(nil)

// Join proposes id/addr as a new voter and records the address for
// recovery. Node names are serf's (string) node names, which this cluster
// mints as stringified catalog node ids; a non-numeric name (e.g. a test
// harness's arbitrary node name) simply skips the catalog recording step.
func (b *RaftBridge) Join(id, addr string) error {
	if err := b.Consensus.AddVoter(id, addr, 0); err != nil {
		return err
	}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		if err := b.NodeAddrs.AddNodeAddr(context.Background(), n, addr); err != nil && b.Logger != nil {
			b.Logger.Warn("failed to record node address", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// Leave removes id from the voting configuration.
func (b *RaftBridge) Leave(id string) error {
	return b.Consensus.RemoveServer(id, 0)
}
