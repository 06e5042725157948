package grpcserver

import (
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported by Check and Watch.
const ServiceName = "savings.ledger"

var errNotListening = errors.New("grpcserver: Listen must be called before Serve")

// Server exposes the standard gRPC health protocol for orchestrators.
// Both the overall ("") and the ledger status start as NOT_SERVING.
type Server struct {
	addr   string
	lis    net.Listener
	health *health.Server
	Server *grpc.Server
}

func New(addr string) *Server {
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{
		addr:   addr,
		health: hs,
		Server: s,
	}
}

// SetServing flips both the overall and the ledger status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// Listen binds the configured address so bind errors surface before Serve
// runs in the background.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.lis = lis
	return nil
}

// Addr is the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.addr
}

func (s *Server) Serve() error {
	if s.lis == nil {
		return errNotListening
	}
	return s.Server.Serve(s.lis)
}

func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
