package rpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
	"github.com/danielpatrickdp/behavior-twin/internal/pipeline"
)

// Server exposes a Pipeline over gRPC.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// NewServer creates a Server for p.
func NewServer(p *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pipeline: p, logger: logger}
}

// Observe applies one activity record.
func (s *Server) Observe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var rec activity.Record
	if err := fromStruct(in, &rec); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	obs, err := s.pipeline.Observe(ctx, rec)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	return s.reply(toStruct(obs))
}

// Report generates an insight snapshot.
func (s *Server) Report(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.pipeline.Report(ctx)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	return s.reply(toStruct(snap))
}

// Save commits the twin snapshot.
func (s *Server) Save(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	version, err := s.pipeline.Save(ctx)
	if errors.Is(err, pipeline.ErrNoPersistence) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err != nil {
		s.logger.Warn("rpc save failed", "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s.reply(toStruct(map[string]string{"version_id": version}))
}

func (s *Server) reply(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		s.logger.Error("rpc encode failed", "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
