// Package collab names the external collaborators this repository talks to
// but does not reimplement: the consensus algorithm itself, the
// application state machine's exact business rules, and whatever delivery
// mechanism tells a waiting client that a watched service changed. Each is
// exposed here only as a Go interface; concrete implementations live where
// they naturally belong (internal/raftadapter wires hashicorp/raft against
// ConsensusEngine's shape, internal/naming implements NamingStateMachine).
package collab

import "time"

// ConsensusEngine is the subset of hashicorp/raft's *raft.Raft this
// repository drives directly: proposing commands, changing membership, and
// reporting leadership. It is deliberately narrow; callers that need the
// full *raft.Raft API use it directly rather than growing this interface.
type ConsensusEngine interface {
	Apply(cmd []byte, timeout time.Duration) (any, error)
	AddVoter(id, address string, timeout time.Duration) error
	RemoveServer(id string, timeout time.Duration) error
	IsLeader() bool
	LeaderAddress() string
}

// NamingStateMachine is the application-level state a ConsensusEngine
// replicates: the registry of named service instances. raft.FSM.Apply
// decodes a committed command and calls one of these.
type NamingStateMachine interface {
	Register(instance ServiceInstance) error
	Deregister(serviceName, instanceID string) error
	Lookup(serviceName string) ([]ServiceInstance, error)
}

// ServiceInstance is one registered endpoint of a named service.
type ServiceInstance struct {
	ServiceName string
	InstanceID  string
	Address     string
	Metadata    map[string]string
	Healthy     bool
}

// DelayNotifier tells a long-poll or streaming client that a service it is
// watching changed, without this package needing to know how that
// notification is actually delivered (HTTP long-poll, gRPC stream, or
// something else entirely).
type DelayNotifier interface {
	NotifyChanged(serviceName string)
}
