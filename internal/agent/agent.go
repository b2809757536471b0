package agent

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/easynet-cn/rnacos/internal/auth"
	"github.com/easynet-cn/rnacos/internal/discovery"
	"github.com/easynet-cn/rnacos/internal/naming"
	"github.com/easynet-cn/rnacos/internal/raftadapter"
	"github.com/easynet-cn/rnacos/internal/server"
)

// Agent sets up and manages every component a cluster node needs: the
// durable raft store, the consensus engine itself, the registry state
// machine, the cluster control-plane grpc server, the client-facing http
// server, and gossip membership. Grounded on the teacher's Agent
// (internal/agent/agent.go), generalized from a single replicated log to a
// raft-backed naming registry.
type Agent struct {
	Config Config

	registry   *naming.Registry
	store      *raftadapter.Store
	snapshots  *raftadapter.SnapshotStoreAdapter
	raft       *raft.Raft
	consensus  *raftadapter.Consensus
	mux        *raftadapter.Mux
	grpcServer *grpc.Server
	httpServer *http.Server
	membership *discovery.Membership

	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
}

// Config contains all the details needed to set up each component in Agent.
type Config struct {
	ServerTLSConfig *tls.Config
	PeerTLSConfig   *tls.Config
	DataDir         string
	BindAddr        string
	// RPCPort serves both the cluster grpc service and raft peer traffic,
	// multiplexed over one listener (raftadapter.Mux).
	RPCPort        int
	HTTPAddr       string
	NodeName       string
	StartJoinAddrs []string
	Bootstrap      bool
	ACLModelFile   string
	ACLPolicyFile  string
}

// RPCAddr returns the multiplexed raft+grpc address.
func (c *Config) RPCAddr() (string, error) {
	host, _, err := net.SplitHostPort(c.BindAddr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, c.RPCPort), nil
}

// New wires up and starts a running agent.
func New(config Config) (*Agent, error) {
	a := &Agent{
		Config:    config,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupLogger,
		a.setupStore,
		a.setupRaft,
		a.setupServer,
		a.setupMembership,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupLogger() error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func (a *Agent) setupStore() error {
	var err error
	a.store, err = raftadapter.Open(a.Config.DataDir, 0)
	if err != nil {
		return err
	}
	a.snapshots, err = raftadapter.NewSnapshotStoreAdapter(a.store.Manager(), a.Config.DataDir)
	return err
}

func (a *Agent) setupRaft() error {
	a.registry = naming.NewRegistry()
	fsm := naming.NewFSM(a.registry)

	rpcAddr, err := a.Config.RPCAddr()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return err
	}
	a.mux = raftadapter.NewMux(ln)
	streamLayer := raftadapter.NewStreamLayer(a.mux.RaftListener(), a.Config.ServerTLSConfig, a.Config.PeerTLSConfig)
	transport := raft.NewNetworkTransport(streamLayer, 5, 10*time.Second, os.Stderr)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(a.Config.NodeName)

	a.raft, err = raft.NewRaft(raftConfig, fsm, a.store, a.store, a.snapshots, transport)
	if err != nil {
		return err
	}
	a.consensus = &raftadapter.Consensus{Raw: a.raft}

	hasState, err := raft.HasExistingState(a.store, a.store, a.snapshots)
	if err != nil {
		return err
	}
	if a.Config.Bootstrap && !hasState {
		cfg := raft.Configuration{
			Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
		}
		return a.raft.BootstrapCluster(cfg).Error()
	}
	return nil
}

func (a *Agent) setupServer() error {
	authorizer := auth.New(a.Config.ACLModelFile, a.Config.ACLPolicyFile)
	grpcConfig := &server.Config{
		Consensus:  a.consensus,
		Authorizer: authorizer,
	}

	var opts []grpc.ServerOption
	if a.Config.ServerTLSConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(a.Config.ServerTLSConfig)))
	}
	var err error
	if a.grpcServer, err = server.NewGRPCServer(grpcConfig, opts...); err != nil {
		return err
	}
	go func() {
		if err := a.grpcServer.Serve(a.mux.OtherListener()); err != nil {
			a.Shutdown()
		}
	}()

	if a.Config.HTTPAddr != "" {
		a.httpServer = server.NewHTTPServer(a.Config.HTTPAddr, a.consensus, a.registry)
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.Shutdown()
			}
		}()
	}
	return nil
}

// setupMembership bridges gossip Join/Leave into raft AddVoter/RemoveServer.
func (a *Agent) setupMembership() error {
	rpcAddr, err := a.Config.RPCAddr()
	if err != nil {
		return err
	}

	handler := &discovery.RaftBridge{
		Consensus: a.consensus,
		NodeAddrs: a.store.Manager(),
		Logger:    zap.L().Named("membership"),
	}
	a.membership, err = discovery.New(handler, discovery.Config{
		NodeName: a.Config.NodeName,
		BindAddr: a.Config.BindAddr,
		Tags: map[string]string{
			"raft_addr": rpcAddr,
		},
		StartJoinAddrs: a.Config.StartJoinAddrs,
	})
	return err
}

// Shutdown tears every component down once.
func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		a.membership.Leave,
		func() error { a.grpcServer.GracefulStop(); return nil },
		func() error {
			if a.httpServer != nil {
				return a.httpServer.Close()
			}
			return nil
		},
		func() error { return a.raft.Shutdown().Error() },
		a.store.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
