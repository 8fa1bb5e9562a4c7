package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultMaxMessageBytes = 16 << 20

// Client invokes LLM procedures on a remote provider over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial prepares a client connection to address. The connection is established
// lazily on the first call.
func Dial(address string, maxMessageBytes int, opts ...grpc.DialOption) (*Client, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("rpc address must not be empty")
	}
	if maxMessageBytes <= 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageBytes),
			grpc.MaxCallSendMsgSize(maxMessageBytes),
		),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create rpc client for %s: %w", address, err)
	}
	return &Client{conn: conn}, nil
}

// Invoke sends payload to procedure and waits for the reply.
func (c *Client) Invoke(ctx context.Context, procedure string, payload []byte) ([]byte, error) {
	if payload == nil {
		payload = []byte{}
	}
	var reply []byte
	if err := c.conn.Invoke(ctx, FullMethod(procedure), payload, &reply, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", procedure, err)
	}
	return reply, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
