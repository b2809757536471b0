package raftadapter

import (
	"time"

	"github.com/hashicorp/raft"

	"github.com/easynet-cn/rnacos/internal/collab"
)

// Consensus adapts *raft.Raft to collab.ConsensusEngine, the narrow surface
// the rest of this repository is allowed to depend on (spec's Non-goal on
// reimplementing consensus: callers that need the full *raft.Raft API,
// such as bootstrap, reach for Raw directly instead of growing this type).
type Consensus struct {
	Raw *raft.Raft
}

var _ collab.ConsensusEngine = (*Consensus)(nil)

func (c *Consensus) Apply(cmd []byte, timeout time.Duration) (any, error) {
	future := c.Raw.Apply(cmd, timeout)
	if err := future.Error(); err != nil {
		return nil, err
	}
	res := future.Response()
	if err, ok := res.(error); ok {
		return nil, err
	}
	return res, nil
}

func (c *Consensus) AddVoter(id, address string, timeout time.Duration) error {
	return c.Raw.AddVoter(raft.ServerID(id), raft.ServerAddress(address), 0, timeout).Error()
}

func (c *Consensus) RemoveServer(id string, timeout time.Duration) error {
	return c.Raw.RemoveServer(raft.ServerID(id), 0, timeout).Error()
}

func (c *Consensus) IsLeader() bool {
	return c.Raw.State() == raft.Leader
}

func (c *Consensus) LeaderAddress() string {
	addr, _ := c.Raw.LeaderWithID()
	return string(addr)
}
