// Package grpcbuf runs gRPC services over an in-memory bufconn listener for
// tests.
package grpcbuf

import (
	"context"
	"net"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// MetaCapture captures incoming metadata on the server side for later inspection in tests.
type MetaCapture struct {
	last   atomic.Value // stores metadata.MD
	method atomic.Value // stores string
}

// Interceptor records incoming metadata and the method name, then forwards
// the request to the next handler.
func (m *MetaCapture) Interceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		m.last.Store(md)
	}
	m.method.Store(info.FullMethod)
	return handler(ctx, req)
}

// Last returns the most recently captured metadata or nil if none.
func (m *MetaCapture) Last() metadata.MD {
	if v := m.last.Load(); v != nil {
		return v.(metadata.MD)
	}
	return nil
}

// LastMethod returns the full name of the most recently called method.
func (m *MetaCapture) LastMethod() string {
	if v := m.method.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// StartServer spins up a bufconn-backed gRPC server with metadata capture
// enabled. register adds the services under test.
func StartServer(register func(grpc.ServiceRegistrar)) (*grpc.Server, *bufconn.Listener, *MetaCapture) {
	lis := bufconn.Listen(bufSize)
	capture := &MetaCapture{}
	srv := grpc.NewServer(grpc.UnaryInterceptor(capture.Interceptor))
	register(srv)
	go func() { _ = srv.Serve(lis) }()
	return srv, lis, capture
}

// Dial connects to the provided bufconn listener using the standard gRPC client stack.
func Dial(lis *bufconn.Listener, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	// bufconn has no TLS; the passthrough target keeps the custom dialer.
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	}
	base = append(base, opts...)
	return grpc.NewClient("passthrough://bufnet", base...)
}
