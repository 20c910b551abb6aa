package walletrpc

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Option configures a Client or a Server. Options that only make sense on
// one side are ignored by the other.
type Option func(*options)

type options struct {
	log         *slog.Logger
	creds       credentials.PerRPCCredentials
	dialer      func(context.Context, string) (net.Conn, error)
	dialOptions []grpc.DialOption
}

func newOptions(opts []Option) options {
	o := options{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCredentials attaches per-RPC credentials to every call made by a Client.
func WithCredentials(c credentials.PerRPCCredentials) Option {
	return func(o *options) {
		if c != nil {
			o.creds = c
		}
	}
}

// WithDialer replaces the network dialer used by a Client. The target passed
// to Dial should then use the passthrough resolver.
func WithDialer(d func(context.Context, string) (net.Conn, error)) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}
