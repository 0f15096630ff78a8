package ratelimit

import (
	"context"
	"net"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	DefaultRPCNamespace = "rpc_"

	rpcMethod = "GRPC"
)

// InterceptorOptions configura os interceptors gRPC. O endpoint é sempre o
// nome completo do método (ex.: "/protocol.Wallet/GetNowBlock").
type InterceptorOptions struct {
	Gate       *application.Gate
	Namespace  string
	HeaderKeys []string
	Logger     *zap.Logger
}

func (o *InterceptorOptions) defaults() {
	if o.Namespace == "" {
		o.Namespace = DefaultRPCNamespace
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func UnaryServerInterceptor(opts InterceptorOptions) grpc.UnaryServerInterceptor {
	opts.defaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		if opts.Gate == nil {
			return handler(ctx, req)
		}

		rd := rpcRuntimeData(ctx, info.FullMethod, opts.HeaderKeys)
		permit, dec := opts.Gate.Admit(ctx, opts.Namespace, info.FullMethod, rd)
		if !dec.Allowed {
			return nil, rejectionStatus(dec)
		}
		defer permit.Release()
		defer recoverRPC(opts.Logger, info.FullMethod, &err)

		return handler(ctx, req)
	}
}

func StreamServerInterceptor(opts InterceptorOptions) grpc.StreamServerInterceptor {
	opts.defaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		if opts.Gate == nil {
			return handler(srv, ss)
		}

		ctx := ss.Context()
		rd := rpcRuntimeData(ctx, info.FullMethod, opts.HeaderKeys)
		permit, dec := opts.Gate.Admit(ctx, opts.Namespace, info.FullMethod, rd)
		if !dec.Allowed {
			return rejectionStatus(dec)
		}
		defer permit.Release()
		defer recoverRPC(opts.Logger, info.FullMethod, &err)

		return handler(srv, ss)
	}
}

func rejectionStatus(dec domain.Decision) error {
	if dec.Reason == domain.ReasonCanceled {
		return status.Error(codes.Canceled, dec.Reason)
	}
	return status.Error(codes.ResourceExhausted, dec.Reason)
}

func recoverRPC(logger *zap.Logger, method string, err *error) {
	p := recover()
	if p == nil {
		return
	}
	logger.Error("rpc api handler failed",
		zap.String("endpoint", method),
		zap.Any("panic", p),
		zap.Stack("stack"),
	)
	*err = status.Error(codes.Internal, "internal error")
}

func rpcRuntimeData(ctx context.Context, fullMethod string, headerKeys []string) domain.RuntimeData {
	var headers map[string][]string
	if md, ok := metadata.FromIncomingContext(ctx); ok && len(headerKeys) > 0 {
		headers = make(map[string][]string, len(headerKeys))
		for _, k := range headerKeys {
			if vs := md.Get(k); len(vs) > 0 {
				headers[k] = vs
			}
		}
	}
	return domain.NewRuntimeData(rpcMethod, fullMethod, peerIP(ctx), headers)
}

func peerIP(ctx context.Context) string {
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
