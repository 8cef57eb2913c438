package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/api"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
)

type GrpcServer struct {
	core *usecase.CoreUseCase
}

func NewGrpcServer(core *usecase.CoreUseCase) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

// NewServer 建立 grpc.Server 並註冊帳本服務與 reflection
func NewServer(core *usecase.CoreUseCase, logger *logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	defaultOpts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			// 客戶端 (pkg/grpc.Pool) 每 10 秒 ping 一次
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)),
	}
	s := grpc.NewServer(append(defaultOpts, opts...)...)
	RegisterLedgerServiceServer(s, NewGrpcServer(core))
	reflection.Register(s) // 方便 gRPC Client 測試 (如 grpcurl)
	return s
}

func (s *GrpcServer) CreateTransaction(ctx context.Context, req *api.CreateTransactionRequest) (*api.TransactionResponse, error) {
	fields, err := req.Transaction.ToFields(s.core.Now(), s.core.Location())
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.core.CreateTransaction(ctx, fields, req.RefID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TransactionResponse{Transaction: tx}, nil
}

func (s *GrpcServer) EditTransaction(ctx context.Context, req *api.EditTransactionRequest) (*api.TransactionResponse, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	// 未帶日期時沿用原交易日期
	fields, err := req.Transaction.ToFields(time.Time{}, s.core.Location())
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.core.EditTransaction(ctx, id, fields)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TransactionResponse{Transaction: tx}, nil
}

func (s *GrpcServer) DeleteTransaction(ctx context.Context, req *api.TransactionIDRequest) (*api.TransactionResponse, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	tx, err := s.core.DeleteTransaction(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TransactionResponse{Transaction: tx}, nil
}

func (s *GrpcServer) GetTransaction(ctx context.Context, req *api.TransactionIDRequest) (*api.TransactionResponse, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	tx, err := s.core.GetTransaction(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TransactionResponse{Transaction: tx}, nil
}

func (s *GrpcServer) ListAccounts(ctx context.Context, _ *api.ListAccountsRequest) (*api.ListAccountsResponse, error) {
	accounts, err := s.core.ListAccounts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ListAccountsResponse{Accounts: accounts}, nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *api.GetBalanceRequest) (*api.GetBalanceResponse, error) {
	balance, err := s.core.GetAccountBalance(ctx, domain.AccountID(req.AccountID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.GetBalanceResponse{
		AccountID: req.AccountID,
		Balance:   balance,
	}, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "invalid transaction id: "+err.Error())
	}
	return id, nil
}

// toStatus 把 domain 錯誤轉成 gRPC status
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAccountNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrLockContention):
		code = codes.Aborted
	case errors.Is(err, domain.ErrTransactionAlreadyProcessed):
		code = codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// LoggingInterceptor 記錄每個 unary 呼叫的方法、狀態碼與耗時
func LoggingInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Debug("grpc request", fields...)
		case codes.Internal, codes.Unknown:
			logger.Error("grpc request", append(fields, zap.Error(err))...)
		default:
			logger.Warn("grpc request", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
