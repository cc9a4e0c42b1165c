// Package health serves the standard gRPC health checking protocol and keeps
// the fusion service's status in step with the pipeline.
package health

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/speedcurrent/internal/monitoring"
)

// ServiceName is the health service name reported for the estimator.
const ServiceName = "speedcurrent.Fusion"

// DefaultPollInterval is how often the checker is polled.
const DefaultPollInterval = time.Second

// DefaultStopTimeout bounds how long Stop waits for open RPCs, such as Watch
// streams, before closing their connections.
const DefaultStopTimeout = 5 * time.Second

var logf = monitoring.Component("health")

// Checker reports whether the estimator is serving.
type Checker interface {
	Running() bool
}

// Config configures the health server.
type Config struct {
	ListenAddr   string
	PollInterval time.Duration
	StopTimeout  time.Duration
}

// Server runs a gRPC server exposing only the health service.
type Server struct {
	config  Config
	checker Checker

	server   *grpc.Server
	health   *grpchealth.Server
	listener net.Listener

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewServer returns a stopped server. The overall and ServiceName statuses
// start as NOT_SERVING until the first poll.
func NewServer(cfg Config, checker Checker) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	h := grpchealth.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h)
	return &Server{
		config:  cfg,
		checker: checker,
		server:  s,
		health:  h,
		stopCh:  make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background. The server owns lis afterwards.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("health server already running")
	}
	s.listener = lis
	s.refresh()

	s.wg.Add(2)
	go s.pollLoop()
	go func() {
		defer s.wg.Done()
		logf("gRPC health listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop marks every service NOT_SERVING and stops the server. Watch streams
// still open after the stop timeout are cut off.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.StopTimeout):
		logf("graceful stop timed out after %v, closing connections", s.config.StopTimeout)
		s.server.Stop()
		<-done
	}
	s.wg.Wait()
	logf("gRPC health server stopped")
}

// Addr is the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) pollLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.checker != nil && s.checker.Running() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
