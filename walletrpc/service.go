package walletrpc

import (
	"context"

	"github.com/ggoodman/walletwatch/wallet"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "walletrpc.Wallet"

const (
	methodWalletBalance          = "/" + ServiceName + "/WalletBalance"
	methodNewAddress             = "/" + ServiceName + "/NewAddress"
	methodListUnspent            = "/" + ServiceName + "/ListUnspent"
	methodRegisterConfidenceNtfn = "/" + ServiceName + "/RegisterConfidenceNtfn"
)

type empty struct{}

type listUnspentResponse struct {
	Utxos []wallet.UTXO `json:"utxos"`
}

type confRequest struct {
	TxID wallet.TxID `json:"tx_id"`
}

// walletServer is the handler set a registered service must implement.
type walletServer interface {
	walletBalance(ctx context.Context) (wallet.Balance, error)
	newAddress(ctx context.Context) (wallet.AddressInfo, error)
	listUnspent(ctx context.Context) (*listUnspentResponse, error)
	registerConfidenceNtfn(req *confRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*walletServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "WalletBalance",
			Handler: unaryHandler(methodWalletBalance, func(ctx context.Context, s walletServer, _ *empty) (any, error) {
				return s.walletBalance(ctx)
			}),
		},
		{
			MethodName: "NewAddress",
			Handler: unaryHandler(methodNewAddress, func(ctx context.Context, s walletServer, _ *empty) (any, error) {
				return s.newAddress(ctx)
			}),
		},
		{
			MethodName: "ListUnspent",
			Handler: unaryHandler(methodListUnspent, func(ctx context.Context, s walletServer, _ *empty) (any, error) {
				return s.listUnspent(ctx)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "RegisterConfidenceNtfn",
			Handler:       confidenceStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "walletrpc/wallet.proto",
}

// unaryHandler builds the boilerplate protoc would otherwise generate for a
// unary method: decode the request, then run it through the interceptor.
func unaryHandler[Req any](fullMethod string, call func(context.Context, walletServer, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(walletServer)
		if interceptor == nil {
			return call(ctx, s, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(ctx, s, req.(*Req))
		})
	}
}

func confidenceStreamHandler(srv any, stream grpc.ServerStream) error {
	in := new(confRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(walletServer).registerConfidenceNtfn(in, stream)
}
