package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Cluster is the peer-to-peer control plane: membership changes (Join,
// Leave) and a liveness/leadership probe (Status). It is hand-written
// directly against grpc-go's public ServiceDesc/MethodDesc API rather than
// protoc-generated, since no .proto pipeline exists for this repository;
// wire encoding rides the "msgpack" content subtype registered in codec.go.

type JoinRequest struct {
	ID           string
	VoterAddress string
	NonVoter     bool
}

type JoinResponse struct{}

type LeaveRequest struct {
	ID string
}

type LeaveResponse struct{}

type StatusRequest struct{}

type StatusResponse struct {
	IsLeader      bool
	LeaderAddress string
}

// ClusterServer is the service implementation contract.
type ClusterServer interface {
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Leave(context.Context, *LeaveRequest) (*LeaveResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// UnimplementedClusterServer can be embedded to satisfy ClusterServer
// forward-compatibly, mirroring the embedding convention generated stubs use.
type UnimplementedClusterServer struct{}

func (UnimplementedClusterServer) Join(context.Context, *JoinRequest) (*JoinResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Join not implemented")
}
func (UnimplementedClusterServer) Leave(context.Context, *LeaveRequest) (*LeaveResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Leave not implemented")
}
func (UnimplementedClusterServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}

func _Cluster_Join_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JoinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterServer).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/cluster.Cluster/Join"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClusterServer).Join(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Cluster_Leave_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LeaveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterServer).Leave(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/cluster.Cluster/Leave"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClusterServer).Leave(ctx, req.(*LeaveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Cluster_Status_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/cluster.Cluster/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClusterServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ClusterServiceDesc is the hand-written equivalent of a protoc-generated
// _ServiceDesc: it is what RegisterClusterServer hands to grpc.Server so the
// server's method dispatch table can be built without codegen.
var ClusterServiceDesc = grpc.ServiceDesc{
	ServiceName: "cluster.Cluster",
	HandlerType: (*ClusterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: _Cluster_Join_Handler},
		{MethodName: "Leave", Handler: _Cluster_Leave_Handler},
		{MethodName: "Status", Handler: _Cluster_Status_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/server/cluster.go",
}

// RegisterClusterServer attaches srv to s's method dispatch table.
func RegisterClusterServer(s grpc.ServiceRegistrar, srv ClusterServer) {
	s.RegisterService(&ClusterServiceDesc, srv)
}

// ClusterClient is the peer-facing client stub.
type ClusterClient interface {
	Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
	Leave(ctx context.Context, in *LeaveRequest, opts ...grpc.CallOption) (*LeaveResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
}

type clusterClient struct {
	cc grpc.ClientConnInterface
}

// NewClusterClient wraps an established connection as a ClusterClient,
// forcing every call onto the msgpack content subtype.
func NewClusterClient(cc grpc.ClientConnInterface) ClusterClient {
	return &clusterClient{cc: cc}
}

func (c *clusterClient) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(msgpackCodecName)}, opts...)
}

func (c *clusterClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	out := new(JoinResponse)
	if err := c.cc.Invoke(ctx, "/cluster.Cluster/Join", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) Leave(ctx context.Context, in *LeaveRequest, opts ...grpc.CallOption) (*LeaveResponse, error) {
	out := new(LeaveResponse)
	if err := c.cc.Invoke(ctx, "/cluster.Cluster/Leave", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/cluster.Cluster/Status", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
