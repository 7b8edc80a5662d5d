package grpcserver

import (
	"context"
	"net"

	"github.com/and161185/collabvault/internal/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// requestContextFromMD reads the signed assertion and the client address of an incoming call.
// A missing or malformed authorization header yields a context without an assertion;
// protected methods then fail authentication.
func requestContextFromMD(ctx context.Context) auth.RequestContext {
	var a *auth.Assertion
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get("authorization") {
			if parsed, err := auth.ParseAuthorization(v); err == nil {
				a = &parsed
				break
			}
		}
	}
	return auth.NewRequestContext(a, "", remoteIP(ctx))
}

func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// RequestContextUnary parses request metadata once and stores it as auth.RequestContext.
func RequestContextUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		return next(auth.WithRequestContext(ctx, requestContextFromMD(ctx)), req)
	}
}
