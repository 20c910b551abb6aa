package walletrpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ggoodman/walletwatch/wallet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server exposes a wallet.Service over gRPC.
type Server struct {
	svc wallet.Service
	log *slog.Logger
}

// NewServer wraps svc. Call Register to attach it to a grpc.Server.
func NewServer(svc wallet.Service, opts ...Option) *Server {
	o := newOptions(opts)
	return &Server{svc: svc, log: o.log}
}

// Register adds the wallet service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

func (s *Server) walletBalance(ctx context.Context) (wallet.Balance, error) {
	b, err := s.svc.Balance(ctx)
	return b, toStatus(err)
}

func (s *Server) newAddress(ctx context.Context) (wallet.AddressInfo, error) {
	a, err := s.svc.RevealNextAddress(ctx)
	return a, toStatus(err)
}

func (s *Server) listUnspent(ctx context.Context) (*listUnspentResponse, error) {
	utxos, err := s.svc.ListUnspent(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if utxos == nil {
		utxos = []wallet.UTXO{}
	}
	return &listUnspentResponse{Utxos: utxos}, nil
}

func (s *Server) registerConfidenceNtfn(req *confRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	log := s.log.With(slog.String("txid", req.TxID.String()))

	sub, err := s.svc.ObserveConfidence(ctx, req.TxID)
	if err != nil {
		return toStatus(err)
	}
	defer func() {
		_ = sub.Close()
		log.DebugContext(ctx, "confidence stream has been dropped")
	}()

	for {
		ev, err := sub.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return toStatus(err)
		}
		if err := stream.SendMsg(&ev); err != nil {
			return err
		}
	}
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, wallet.ErrInvalidTxID):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}
