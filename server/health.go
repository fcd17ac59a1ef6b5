package server

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// ServiceName is the name reported by the health service.
const ServiceName = "glados"

// Health serves grpc.health.v1 and backs the HTTP health endpoint.
type Health struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewHealth creates a health service reporting SERVING.
func NewHealth() *Health {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	h := &Health{grpc: srv, health: hs}
	h.SetServing(true)
	return h
}

// SetServing updates the reported status of the overall server and ServiceName.
func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Serve accepts gRPC connections on lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// Stop marks the service as not serving and stops the gRPC server.
func (h *Health) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// check returns the status as protojson and whether it is SERVING.
func (h *Health) check(ctx context.Context) ([]byte, bool, error) {
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return nil, false, err
	}
	data, err := protojson.Marshal(resp)
	if err != nil {
		return nil, false, err
	}
	return data, resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
