package remote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ErrClosed is returned when using a closed client.
var ErrClosed = errors.New("remote client closed")

// Client calls a remote cellvm.Machine service.
type Client struct {
	config ClientConfig
	conn   *grpc.ClientConn
	closed atomic.Bool
}

// Dial connects to a server. Extra options are appended to the defaults.
func Dial(config ClientConfig, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    config.KeepaliveTime,
			Timeout: config.KeepaliveTimeout,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(config.MaxMessageSize),
		),
	}
	opts = append(opts, extra...)

	//nolint:staticcheck // Dial keeps the passthrough resolver for plain host:port targets
	conn, err := grpc.Dial(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gRPC: %w", err)
	}
	return &Client{config: config, conn: conn}, nil
}

// Run executes a program on the server.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	resp := new(RunResponse)
	if err := c.conn.Invoke(ctx, runMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClosed
	}
	return c.conn.Close()
}
