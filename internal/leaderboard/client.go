package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is also the name the server reports to health checks.
	ServiceName     = "leaderboard.v1.Leaderboard"
	submitMethod    = "/" + ServiceName + "/SubmitScore"
	topScoresMethod = "/" + ServiceName + "/TopScores"
)

var (
	ErrUnavailable = errors.New("leaderboard unavailable")
	ErrThrottled   = errors.New("leaderboard submit throttled")
)

// Client talks to a score service.
type Client interface {
	Submit(ctx context.Context, e Entry) error
	Top(ctx context.Context, limit int) ([]Entry, error)
}

// Disabled is used when no leaderboard address is configured.
type Disabled struct{}

func (Disabled) Submit(context.Context, Entry) error       { return ErrUnavailable }
func (Disabled) Top(context.Context, int) ([]Entry, error) { return nil, ErrUnavailable }

// GRPCClient calls the service with Struct messages, so no generated stubs are needed.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial creates a lazily connecting client for addr.
func Dial(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("leaderboard dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

// Healthy asks the server's health service whether the leaderboard is serving.
func (c *GRPCClient) Healthy(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: status %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (c *GRPCClient) Submit(ctx context.Context, e Entry) error {
	req, err := e.toStruct()
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, submitMethod, req, &structpb.Struct{}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *GRPCClient) Top(ctx context.Context, limit int) ([]Entry, error) {
	req, err := structpb.NewStruct(map[string]any{"limit": float64(limit)})
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, topScoresMethod, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entriesFromStruct(resp)
}
