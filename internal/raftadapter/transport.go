package raftadapter

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/raft"
)

// RaftRPC is the single-byte marker a connection opens with so that a
// listener serving both the cluster gRPC service and raw raft RPC on one
// port can tell them apart. Grounded verbatim on the teacher's
// distributed.go StreamLayer multiplexing scheme.
const RaftRPC = 1

// StreamLayer implements raft.StreamLayer over a single shared listener,
// encrypting peer-to-peer raft traffic with an optional mTLS config.
type StreamLayer struct {
	ln              net.Listener
	serverTLSConfig *tls.Config
	peerTLSConfig   *tls.Config
}

var _ raft.StreamLayer = (*StreamLayer)(nil)

// NewStreamLayer wraps ln for raft peer traffic.
func NewStreamLayer(ln net.Listener, serverTLSConfig, peerTLSConfig *tls.Config) *StreamLayer {
	return &StreamLayer{ln: ln, serverTLSConfig: serverTLSConfig, peerTLSConfig: peerTLSConfig}
}

// Dial opens an outgoing connection to a raft peer, writing the
// RaftRPC marker byte first so the peer's Accept can route it.
func (s *StreamLayer) Dial(addr raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", string(addr))
	if err != nil {
		return nil, err
	}
	if _, err = conn.Write([]byte{byte(RaftRPC)}); err != nil {
		return nil, err
	}
	if s.peerTLSConfig != nil {
		conn = tls.Client(conn, s.peerTLSConfig)
	}
	return conn, nil
}

// Accept reads the marker byte off an incoming connection and rejects
// anything that isn't tagged as raft traffic.
func (s *StreamLayer) Accept() (net.Conn, error) {
	conn, err := s.ln.Accept()
	if err != nil {
		return nil, err
	}
	b := make([]byte, 1)
	if _, err = conn.Read(b); err != nil {
		return nil, err
	}
	if !bytes.Equal(b, []byte{byte(RaftRPC)}) {
		return nil, fmt.Errorf("not a raft rpc")
	}
	if s.serverTLSConfig != nil {
		return tls.Server(conn, s.serverTLSConfig), nil
	}
	return conn, nil
}

func (s *StreamLayer) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *StreamLayer) Close() error {
	return s.ln.Close()
}
