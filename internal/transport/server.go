package transport

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/mohsanabbas/kflow/api/proto/v1"
	"github.com/mohsanabbas/kflow/kerrors"
)

// Registry is the subset of manager.Manager the control server needs:
// topic-scoped pause/resume, satisfied structurally by
// *manager.Manager[*producer.Engine] and *manager.Manager[*consumer.Engine[K, V]]
// for any K, V — transport stays free of a dependency on either engine
// package or on the Manager's type parameter.
type Registry interface {
	PauseTopic(topicName string) error
	ResumeTopic(topicName string) error
	Topics() []string
}

// Server exposes Manager topic pause and a liveness probe over the
// existing Control gRPC service, replacing the teacher's unimplemented
// stub handlers with ones backed by the real engines.
type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// StartServer binds port and registers a controlServer backed by
// producers/consumers. Either registry may be nil if that role isn't
// running in this process.
func StartServer(port int, producers, consumers Registry) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	s := &Server{
		grpc: grpc.NewServer(),
		lis:  lis,
	}
	pb.RegisterControlServer(s.grpc, &controlServer{producers: producers, consumers: consumers})
	return s, nil
}

// Serve blocks, accepting connections until Stop is called.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

// Stop gracefully drains in-flight RPCs and stops accepting new ones.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Addr reports the listener's bound address, useful when port 0 was
// requested and the OS picked one.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

type controlServer struct {
	pb.UnimplementedControlServer
	producers Registry
	consumers Registry
}

func (s *controlServer) Ping(context.Context, *pb.PingRequest) (*pb.PingReply, error) {
	return &pb.PingReply{Status: "ok"}, nil
}

// DeployPipeline is intentionally unimplemented: a Manager's topic set is
// immutable once Start has been called (invariant i), so there is no
// runtime operation to back a dynamic deploy RPC against.
func (s *controlServer) DeployPipeline(context.Context, *pb.DeployRequest) (*pb.DeployReply, error) {
	return nil, status.Error(codes.Unimplemented, "topics are wired at process startup; dynamic deployment is not supported")
}

func (s *controlServer) PausePipeline(ctx context.Context, req *pb.PauseRequest) (*pb.PauseReply, error) {
	topicName := req.GetId()
	if topicName == "" {
		return nil, status.Error(codes.InvalidArgument, "id (topic name) is required")
	}
	if err := s.pauseTopic(topicName); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &pb.PauseReply{Ok: true}, nil
}

func (s *controlServer) pauseTopic(topicName string) error {
	if s.producers != nil {
		if err := s.producers.PauseTopic(topicName); err == nil {
			return nil
		}
	}
	if s.consumers != nil {
		if err := s.consumers.PauseTopic(topicName); err == nil {
			return nil
		}
	}
	return kerrors.New(kerrors.Configuration, kerrors.CodeUnknownTopic, "no producer or consumer registered for topic "+topicName)
}
