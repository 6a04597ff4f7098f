// Package modelclient is the "external" model-RPC path referenced by
// spec.md §4.3 and §6: the query processor dispatches a prediction
// request to a model-container worker and races the response against a
// deadline timer. It is grounded on the teacher's
// handlers/external/interactionstore package: a DNS-resolved
// grpc.ClientConn per external dependency, dialed once and reused,
// invoked with a context carrying the per-call deadline.
//
// Generated protobuf stubs aren't available in this workspace (no
// protoc run), so requests are framed as JSON over gRPC via the
// "json" codec registered in codec.go rather than proto.Message a
// hand-authored .pb.go could not be trusted to match exactly.
package modelclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clipper-go/predictserve/internal/logging"
	"github.com/clipper-go/predictserve/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/resolver"
)

const resolverScheme = "dns"

var component = logging.Component("MODELCLIENT")

// PredictRequest is the payload sent to a model container.
type PredictRequest struct {
	AppName string             `json:"app_name"`
	UserID  string             `json:"uid"`
	Input   model.InputTensor  `json:"input"`
}

// PredictResponse is the payload returned by a model container.
type PredictResponse struct {
	Output float64 `json:"output"`
}

// FeedbackRequest is the payload sent for an update() dispatch, if the
// selected model container also owns online-learning state.
type FeedbackRequest struct {
	AppName string  `json:"app_name"`
	UserID  string  `json:"uid"`
	Label   float64 `json:"label"`
	Input   model.InputTensor `json:"input"`
}

// ModelClient is the query processor's view of the model-RPC path.
type ModelClient interface {
	Predict(ctx context.Context, target model.VersionedModelId, req PredictRequest) (PredictResponse, error)
	Close() error
}

// GRPCModelClient dials one connection per distinct (name, version) the
// first time it is addressed, then reuses it. Addresses are resolved via
// the gRPC DNS resolver against "<name>-<version>.<domainSuffix>:port",
// following the teacher's resolver.SetDefaultScheme("dns") convention.
type GRPCModelClient struct {
	domainSuffix string
	port         string
	dialTimeout  time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func init() {
	resolver.SetDefaultScheme(resolverScheme)
}

// NewGRPCModelClient constructs a client that resolves model containers
// under domainSuffix on the given port.
func NewGRPCModelClient(domainSuffix, port string, dialTimeout time.Duration) *GRPCModelClient {
	return &GRPCModelClient{
		domainSuffix: domainSuffix,
		port:         port,
		dialTimeout:  dialTimeout,
		conns:        make(map[string]*grpc.ClientConn),
	}
}

func (c *GRPCModelClient) connFor(target model.VersionedModelId) (*grpc.ClientConn, error) {
	key := target.Name + ":" + target.Version
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[key]; ok {
		return conn, nil
	}
	addr := fmt.Sprintf("%s-%s.%s:%s", target.Name, target.Version, c.domainSuffix, c.port)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"round_robin"}`),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing model container %s: %w", key, err)
	}
	c.conns[key] = conn
	return conn, nil
}

// Predict dispatches to the model container's Predict RPC, bounded only
// by the caller's context. The query processor passes a context that is
// cancelled at shutdown, not at the latency SLO; it races this call
// against its own deadline timer and discards a late result.
func (c *GRPCModelClient) Predict(ctx context.Context, target model.VersionedModelId, req PredictRequest) (PredictResponse, error) {
	conn, err := c.connFor(target)
	if err != nil {
		return PredictResponse{}, err
	}
	var resp PredictResponse
	if err := conn.Invoke(ctx, "/clipper.ModelRPC/Predict", &req, &resp); err != nil {
		component.Error(fmt.Sprintf("model dispatch failed for %s:%s", target.Name, target.Version), err)
		return PredictResponse{}, err
	}
	return resp, nil
}

// Close tears down every dialed connection.
func (c *GRPCModelClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for key, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection to %s: %w", key, err)
		}
	}
	return firstErr
}
