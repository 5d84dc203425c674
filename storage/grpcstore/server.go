package grpcstore

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/depot/storage"
)

// Server exposes a content provider and an alias provider over the
// Store gRPC service. Either field may be nil; calls against a
// missing provider fail with FailedPrecondition.
type Server struct {
	UnimplementedStoreServer
	Content storage.ContentProvider
	Aliases storage.AliasProvider
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Content == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing content provider")
	}
	id, err := decodeIdentifier(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	data, err := storage.ReadBlob(ctx, s.Content, id)
	if err != nil {
		return nil, mapErr(err)
	}
	// Enforce the integrity contract on the server side too.
	if !id.Matches(data) {
		return nil, status.Error(codes.DataLoss, storage.ErrCorrupted.Error())
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Content == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing content provider")
	}
	id, data, err := decodePutFrame(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	w, err := s.Content.GetWriter(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if w == nil {
		// Dedup: the content already exists.
		return wrapperspb.Bool(false), nil
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return nil, mapErr(err)
	}
	if err := w.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(true), nil
}

func (s *Server) Stat(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error) {
	if s == nil || s.Content == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing content provider")
	}
	id, err := decodeIdentifier(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	size, err := s.Content.Stat(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Int64(size), nil
}

func (s *Server) Delete(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Content == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing content provider")
	}
	id, err := decodeIdentifier(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.Content.Delete(ctx, id); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(true), nil
}

func (s *Server) Resolve(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Aliases == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing alias provider")
	}

	id, err := s.Aliases.Resolve(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(id.AppendWire(nil)), nil
}

func (s *Server) Register(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Aliases == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing alias provider")
	}
	key, id, err := decodeRegisterFrame(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	got, err := s.Aliases.Register(ctx, key, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(got.AppendWire(nil)), nil
}
