// Package naming implements the replicated service registry: the
// NamingStateMachine collab.ConsensusEngine's raft.FSM applies committed
// commands against.
package naming

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/hashicorp/raft"

	"github.com/easynet-cn/rnacos/internal/collab"
)

// commandType tags a replicated command the same way the teacher's
// distributed.go tags its single AppendRequestType: a one-byte discriminant
// written before the msgpack-encoded payload.
type commandType uint8

const (
	commandRegister commandType = iota
	commandDeregister
)

func msgpackHandle() *codec.MsgpackHandle { return &codec.MsgpackHandle{} }

func encodeCommand(t commandType, payload any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(t))
	enc := codec.NewEncoder(&buf, msgpackHandle())
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}

type registerCommand struct {
	Instance collab.ServiceInstance
}

type deregisterCommand struct {
	ServiceName string
	InstanceID  string
}

// EncodeRegister builds the replicated log entry for a Register call.
func EncodeRegister(instance collab.ServiceInstance) ([]byte, error) {
	return encodeCommand(commandRegister, registerCommand{Instance: instance})
}

// EncodeDeregister builds the replicated log entry for a Deregister call.
func EncodeDeregister(serviceName, instanceID string) ([]byte, error) {
	return encodeCommand(commandDeregister, deregisterCommand{ServiceName: serviceName, InstanceID: instanceID})
}

// Registry is the in-memory NamingStateMachine every node's raft.FSM
// applies committed commands against. Reads never go through consensus
// (the teacher's "relaxed consistency" read path, distributed.go's
// DistributedLog.Read), so Lookup just locks and copies.
type Registry struct {
	mu       sync.RWMutex
	services map[string]map[string]collab.ServiceInstance // serviceName -> instanceID -> instance
}

var _ collab.NamingStateMachine = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]map[string]collab.ServiceInstance)}
}

// Register upserts a service instance. It is called only from the FSM's
// Apply path, after the write has already been committed by raft.
func (r *Registry) Register(instance collab.ServiceInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	instances, ok := r.services[instance.ServiceName]
	if !ok {
		instances = make(map[string]collab.ServiceInstance)
		r.services[instance.ServiceName] = instances
	}
	instances[instance.InstanceID] = instance
	return nil
}

// Deregister removes a service instance, if present.
func (r *Registry) Deregister(serviceName, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if instances, ok := r.services[serviceName]; ok {
		delete(instances, instanceID)
		if len(instances) == 0 {
			delete(r.services, serviceName)
		}
	}
	return nil
}

// Lookup returns a snapshot of every healthy instance registered under
// serviceName.
func (r *Registry) Lookup(serviceName string) ([]collab.ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instances := r.services[serviceName]
	out := make([]collab.ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.Healthy {
			out = append(out, inst)
		}
	}
	return out, nil
}

// snapshotState is the wire shape of a full registry dump, used by both
// Snapshot/Restore and nowhere else.
type snapshotState struct {
	Services map[string]map[string]collab.ServiceInstance
}

func (r *Registry) state() snapshotState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]collab.ServiceInstance, len(r.services))
	for name, instances := range r.services {
		copyInstances := make(map[string]collab.ServiceInstance, len(instances))
		for id, inst := range instances {
			copyInstances[id] = inst
		}
		out[name] = copyInstances
	}
	return snapshotState{Services: out}
}

func (r *Registry) restore(s snapshotState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = s.Services
	if r.services == nil {
		r.services = make(map[string]map[string]collab.ServiceInstance)
	}
}

// FSM adapts Registry to raft.FSM, the interface hashicorp/raft actually
// drives. Grounded on the teacher's fsm type (internal/log/distributed.go):
// a one-byte command type prefix, Snapshot/Persist/Restore streaming the
// full state rather than a byte-for-byte log replay.
type FSM struct {
	Registry *Registry
}

var _ raft.FSM = (*FSM)(nil)

// NewFSM wraps registry as a raft.FSM.
func NewFSM(registry *Registry) *FSM {
	return &FSM{Registry: registry}
}

// Apply decodes and applies one committed log entry.
func (f *FSM) Apply(entry *raft.Log) any {
	if len(entry.Data) == 0 {
		return nil
	}
	t := commandType(entry.Data[0])
	dec := codec.NewDecoder(bytes.NewReader(entry.Data[1:]), msgpackHandle())
	switch t {
	case commandRegister:
		var cmd registerCommand
		if err := dec.Decode(&cmd); err != nil {
			return err
		}
		return f.Registry.Register(cmd.Instance)
	case commandDeregister:
		var cmd deregisterCommand
		if err := dec.Decode(&cmd); err != nil {
			return err
		}
		return f.Registry.Deregister(cmd.ServiceName, cmd.InstanceID)
	default:
		return fmt.Errorf("unknown naming command type %d", t)
	}
}

type fsmSnapshot struct {
	state snapshotState
}

var _ raft.FSMSnapshot = (*fsmSnapshot)(nil)

// Snapshot captures the registry's full current state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{state: f.Registry.state()}, nil
}

// Persist writes the snapshot to sink as msgpack bytes.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	enc := codec.NewEncoder(sink, msgpackHandle())
	if err := enc.Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Restore replaces the registry's state with what was read from r.
func (f *FSM) Restore(r io.ReadCloser) error {
	defer r.Close()
	var state snapshotState
	dec := codec.NewDecoder(r, msgpackHandle())
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	f.Registry.restore(state)
	return nil
}
