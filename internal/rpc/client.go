package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/insights"
	"github.com/danielpatrickdp/behavior-twin/internal/pipeline"
)

// #region client-struct
// Client wraps a gRPC connection to a twin server.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewClient connects to the twin gRPC server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region calls
// Observe sends one record.
func (c *Client) Observe(ctx context.Context, rec activity.Record) (pipeline.Observation, error) {
	var obs pipeline.Observation
	err := c.call(ctx, methodObserve, rec, &obs)
	if err != nil {
		return pipeline.Observation{}, fmt.Errorf("observe rpc: %w", err)
	}
	return obs, nil
}

// Report asks for an insight snapshot.
func (c *Client) Report(ctx context.Context) (insights.Snapshot, error) {
	var snap insights.Snapshot
	if err := c.call(ctx, methodReport, struct{}{}, &snap); err != nil {
		return insights.Snapshot{}, fmt.Errorf("report rpc: %w", err)
	}
	return snap, nil
}

// Save asks the server to commit its twin snapshot and returns the version id.
func (c *Client) Save(ctx context.Context) (string, error) {
	var out struct {
		VersionID string `json:"version_id"`
	}
	if err := c.call(ctx, methodSave, struct{}{}, &out); err != nil {
		return "", fmt.Errorf("save rpc: %w", err)
	}
	return out.VersionID, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}
// #endregion calls
