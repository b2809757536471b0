package server

import (
	"context"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/auth"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"go.opencensus.io/plugin/ocgrpc"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/easynet-cn/rnacos/internal/collab"
)

// Authorizer is the ACL check every cluster RPC runs through before
// touching the consensus engine.
type Authorizer interface {
	Authorize(subject, object, action string) error
}

const (
	objectWildCard = "*"
	joinAction     = "join"
	leaveAction    = "leave"
	statusAction   = "status"
)

// Config wires a clusterServer to its collaborators.
type Config struct {
	Consensus  collab.ConsensusEngine
	Authorizer Authorizer
}

type subjectContextKey struct{}

type clusterServer struct {
	UnimplementedClusterServer
	*Config
}

var _ ClusterServer = (*clusterServer)(nil)

// NewGRPCServer builds the cluster control-plane grpc.Server: interceptor
// chain, opencensus stats handler, and the hand-written ClusterServer
// registered on the msgpack content subtype. Grounded on the teacher's
// NewGRPCServer (internal/server/server.go), generalized from the log's
// Produce/Consume RPCs to cluster Join/Leave/Status.
func NewGRPCServer(config *Config, opts ...grpc.ServerOption) (*grpc.Server, error) {
	logger := zap.L().Named("server")
	zapOpts := []grpc_zap.Option{
		grpc_zap.WithDurationField(
			func(duration time.Duration) zapcore.Field {
				return zap.Int64("grpc.time_ns", duration.Nanoseconds())
			},
		),
	}
	trace.ApplyConfig(trace.Config{
		DefaultSampler: trace.AlwaysSample(),
	})
	if err := view.Register(ocgrpc.DefaultServerViews...); err != nil {
		return nil, err
	}

	opts = append(opts, grpc.StreamInterceptor(
		grpc_middleware.ChainStreamServer(
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_zap.StreamServerInterceptor(logger, zapOpts...),
			grpc_auth.StreamServerInterceptor(authenticate),
		)), grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
		grpc_ctxtags.UnaryServerInterceptor(),
		grpc_zap.UnaryServerInterceptor(logger, zapOpts...),
		grpc_auth.UnaryServerInterceptor(authenticate),
	)))
	opts = append(opts, grpc.StatsHandler(&ocgrpc.ServerHandler{}))

	gsrv := grpc.NewServer(opts...)
	RegisterClusterServer(gsrv, &clusterServer{Config: config})
	return gsrv, nil
}

// Join adds a voter to the replicated cluster.
func (s *clusterServer) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	if err := s.Authorizer.Authorize(subject(ctx), objectWildCard, joinAction); err != nil {
		return nil, err
	}
	if err := s.Consensus.AddVoter(req.ID, req.VoterAddress, 10*time.Second); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &JoinResponse{}, nil
}

// Leave removes a server from the replicated cluster.
func (s *clusterServer) Leave(ctx context.Context, req *LeaveRequest) (*LeaveResponse, error) {
	if err := s.Authorizer.Authorize(subject(ctx), objectWildCard, leaveAction); err != nil {
		return nil, err
	}
	if err := s.Consensus.RemoveServer(req.ID, 10*time.Second); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &LeaveResponse{}, nil
}

// Status reports this node's view of cluster leadership.
func (s *clusterServer) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	if err := s.Authorizer.Authorize(subject(ctx), objectWildCard, statusAction); err != nil {
		return nil, err
	}
	return &StatusResponse{
		IsLeader:      s.Consensus.IsLeader(),
		LeaderAddress: s.Consensus.LeaderAddress(),
	}, nil
}

// authenticate reads the verified client certificate's subject common name
// off the connection and stashes it in the request context.
func authenticate(ctx context.Context) (context.Context, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return ctx, status.New(codes.Unknown, "couldn't get peer info").Err()
	}
	if p.AuthInfo == nil {
		return context.WithValue(ctx, subjectContextKey{}, ""), nil
	}
	tlsInfo := p.AuthInfo.(credentials.TLSInfo)
	cn := tlsInfo.State.VerifiedChains[0][0].Subject.CommonName
	return context.WithValue(ctx, subjectContextKey{}, cn), nil
}

func subject(ctx context.Context) string {
	v, _ := ctx.Value(subjectContextKey{}).(string)
	return v
}
