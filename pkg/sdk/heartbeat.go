package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dria-oracle/llm-oracle-go/pkg/grpc"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Heartbeat is the payload served on /heartbeat by a running node.
type Heartbeat struct {
	Status       string `json:"status"`
	Owner        string `json:"owner"`
	StateVersion uint64 `json:"state_version"`
	NextTaskID   uint64 `json:"next_task_id"`
	Archiving    bool   `json:"archiving"`

	// PendingTransfers counts transfers awaiting owner resolution.
	PendingTransfers int `json:"pending_transfers"`
}

// Heartbeat reports the node's current liveness summary.
func (c *Core) Heartbeat() Heartbeat {
	return Heartbeat{
		Status:       "ok",
		Owner:        c.store.Owner().Hex(),
		StateVersion: c.store.Version(),
		NextTaskID:   c.coordinator.NextTaskID(),
		Archiving:    c.archiver != nil,

		PendingTransfers: len(c.escrow.Pending()),
	}
}

// HeartbeatHandler serves Heartbeat as JSON.
func (c *Core) HeartbeatHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Heartbeat()); err != nil {
			zap.L().Error("failed to write heartbeat", zap.Error(err))
		}
	})
}

// Healthcheck checks a remote oracle node over gRPC or HTTP.
type Healthcheck interface {
	// GRPC performs a standard gRPC health check of the query service.
	GRPC(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error)
	// HTTP fetches the node's /heartbeat document.
	HTTP(ctx context.Context) (*Heartbeat, error)
}

// healthcheckClient is a concrete implementation of Healthcheck interface.
type healthcheckClient struct {
	grpcClient *grpc.Client // query service connection
	httpBase   string       // base URL of the node's HTTP listener
	http       *http.Client
}

// NewHealthcheck returns a Healthcheck using grpcClient for the gRPC check
// and httpBase (e.g. "http://localhost:9090") for the HTTP one.
func NewHealthcheck(grpcClient *grpc.Client, httpBase string) Healthcheck {
	return &healthcheckClient{
		grpcClient: grpcClient,
		httpBase:   strings.TrimRight(httpBase, "/"),
		http:       http.DefaultClient,
	}
}

// GRPC performs a standard gRPC health check against the query service.
func (hc *healthcheckClient) GRPC(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
	client := grpc_health_v1.NewHealthClient(hc.grpcClient.GRPC)
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "oracle.v1.OracleQuery"})
	if err != nil {
		return nil, fmt.Errorf("grpc heartbeat failed: %w", err)
	}
	return resp, nil
}

// HTTP performs a GET request to "<httpBase>/heartbeat" and decodes the
// response.
func (hc *healthcheckClient) HTTP(ctx context.Context) (*Heartbeat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.httpBase+"/heartbeat", nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			zap.L().Error("failed to close heartbeat", zap.Error(err))
		}
	}(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("heartbeat failed with: %v", resp.StatusCode)
	}
	var result Heartbeat
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode heartbeat response: %w", err)
	}
	return &result, nil
}
