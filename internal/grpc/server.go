package grpc

import (
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName — имя сервиса в grpc.health.v1.
const ServiceName = "field-service"

// Server — gRPC-сервер со стандартным health-сервисом и reflection.
// Статус SERVING выставляется по результату обращения к БД.
type Server struct {
	srv    *grpc.Server
	health *health.Server

	mu      sync.Mutex
	serving bool
}

func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{srv: grpc.NewServer(opts...), health: health.NewServer()}
	healthpb.RegisterHealthServer(s.srv, s.health)
	reflection.Register(s.srv)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetDatabaseStatus переключает статус по результату проверки БД; переходы логируются.
func (s *Server) SetDatabaseStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	serving := err == nil
	if serving == s.serving {
		return
	}
	s.serving = serving
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		slog.Warn("grpc health: not serving", "error", err)
	} else {
		slog.Info("grpc health: serving")
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Stop завершает сервер; health переводится в NOT_SERVING для активных watch-подписок.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
