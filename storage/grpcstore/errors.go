package grpcstore

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// mapErr translates storage errors to gRPC status codes. The
// success / not-found / already-exists trichotomy must survive the
// transport.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrAliasExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, storage.ErrCorrupted):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, ident.ErrInvalidIdentifier):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC is mapErr's inverse on the client side. notFound selects the
// namespace-appropriate sentinel, since both content and alias
// absence travel as codes.NotFound.
func mapRPC(err error, notFound error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return notFound
	case codes.AlreadyExists:
		return storage.ErrAliasExists
	case codes.DataLoss:
		return storage.ErrCorrupted
	case codes.InvalidArgument:
		return ident.ErrInvalidIdentifier
	default:
		return err
	}
}
