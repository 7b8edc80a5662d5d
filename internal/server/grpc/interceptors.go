package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/and161185/collabvault/internal/errs"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary logs one line per call: method, status code, duration and client address.
// Server-side failures are logged at warn level; payloads are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		level := zap.InfoLevel
		switch code {
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			level = zap.WarnLevel
		}
		log.Log(level, "grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remoteIP(ctx)),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// ErrorsUnary converts domain errors returned by handlers into gRPC statuses.
// Unexpected failures are logged with their detail and surface as codes.Internal.
func ErrorsUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		resp, err := next(ctx, req)
		if err == nil {
			return resp, nil
		}
		if statusCode(err) == codes.Internal {
			if _, ok := status.FromError(err); !ok {
				log.Error("request failed",
					zap.String("method", info.FullMethod),
					zap.String("kind", errs.Kind(err)),
					zap.Error(err),
				)
			}
		}
		return nil, toStatus(err)
	}
}

// Chain returns the interceptor chain of the sync API, outermost first.
func Chain(log *zap.Logger) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		ErrorsUnary(log),
		RequestContextUnary(),
	)
}
