package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the backend registers. Requests are
// google.protobuf.Struct values shaped like the HTTP bodies; replies carry
// the HTTP reply body under "data".
const ServiceName = "rehearse.v1.InterviewService"

const dialTimeout = 3 * time.Second

type grpcTransport struct {
	conn  *grpc.ClientConn
	token string
}

func newGRPCTransport(ctx context.Context, cfg Config) (*grpcTransport, error) {
	addr := strings.TrimSpace(cfg.GRPCAddress)
	if addr == "" {
		return nil, errors.New("backend grpc address is empty")
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial backend grpc %q: %w", addr, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for backend grpc readiness: %w", err)
	}
	return &grpcTransport{conn: conn, token: cfg.Token}, nil
}

func (t *grpcTransport) roundTrip(ctx context.Context, op operation, body []byte) ([]byte, error) {
	in := &structpb.Struct{}
	if err := protojson.Unmarshal(body, in); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}

	out := &structpb.Struct{}
	method := "/" + ServiceName + "/" + op.rpc
	if err := t.conn.Invoke(t.outgoing(ctx), method, in, out); err != nil {
		return nil, grpcError(err)
	}

	data, ok := out.GetFields()["data"]
	if !ok {
		return nil, fmt.Errorf("%w: reply has no data field", ErrMalformed)
	}
	raw, err := protojson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return raw, nil
}

func (t *grpcTransport) health(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(t.conn).Check(t.outgoing(ctx), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("backend health: %w", grpcError(err))
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("backend health: service is %s", resp.GetStatus())
	}
	return nil
}

func (t *grpcTransport) close() error {
	return t.conn.Close()
}

func (t *grpcTransport) outgoing(ctx context.Context) context.Context {
	if t.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+t.token)
}

func grpcError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return fmt.Errorf("grpc %s: %s", st.Code(), st.Message())
}

// waitForReady blocks until the connection is Ready or the context ends.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}
		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state)
		}
	}
}
