package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/api"
	grpcpkg "github.com/JoeShih716/go-cash-ledger/pkg/grpc"
)

// ServiceName gRPC 服務名稱
const ServiceName = "cashledger.LedgerService"

// LedgerServiceServer 帳本 gRPC 服務
type LedgerServiceServer interface {
	CreateTransaction(context.Context, *api.CreateTransactionRequest) (*api.TransactionResponse, error)
	EditTransaction(context.Context, *api.EditTransactionRequest) (*api.TransactionResponse, error)
	DeleteTransaction(context.Context, *api.TransactionIDRequest) (*api.TransactionResponse, error)
	GetTransaction(context.Context, *api.TransactionIDRequest) (*api.TransactionResponse, error)
	ListAccounts(context.Context, *api.ListAccountsRequest) (*api.ListAccountsResponse, error)
	GetBalance(context.Context, *api.GetBalanceRequest) (*api.GetBalanceResponse, error)
}

// unaryHandler 把強型別的方法包成 grpc.MethodDesc 需要的 handler
func unaryHandler[Req any, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LedgerServiceDesc 手動宣告的 ServiceDesc，訊息以 JSON codec 編碼
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateTransaction", LedgerServiceServer.CreateTransaction),
		unaryHandler("EditTransaction", LedgerServiceServer.EditTransaction),
		unaryHandler("DeleteTransaction", LedgerServiceServer.DeleteTransaction),
		unaryHandler("GetTransaction", LedgerServiceServer.GetTransaction),
		unaryHandler("ListAccounts", LedgerServiceServer.ListAccounts),
		unaryHandler("GetBalance", LedgerServiceServer.GetBalance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cashledger/ledger.json",
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerServiceClient 帳本 gRPC 客戶端
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(grpcpkg.CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerServiceClient) CreateTransaction(ctx context.Context, in *api.CreateTransactionRequest, opts ...grpc.CallOption) (*api.TransactionResponse, error) {
	return invoke[api.TransactionResponse](ctx, c.cc, "CreateTransaction", in, opts)
}

func (c *LedgerServiceClient) EditTransaction(ctx context.Context, in *api.EditTransactionRequest, opts ...grpc.CallOption) (*api.TransactionResponse, error) {
	return invoke[api.TransactionResponse](ctx, c.cc, "EditTransaction", in, opts)
}

func (c *LedgerServiceClient) DeleteTransaction(ctx context.Context, in *api.TransactionIDRequest, opts ...grpc.CallOption) (*api.TransactionResponse, error) {
	return invoke[api.TransactionResponse](ctx, c.cc, "DeleteTransaction", in, opts)
}

func (c *LedgerServiceClient) GetTransaction(ctx context.Context, in *api.TransactionIDRequest, opts ...grpc.CallOption) (*api.TransactionResponse, error) {
	return invoke[api.TransactionResponse](ctx, c.cc, "GetTransaction", in, opts)
}

func (c *LedgerServiceClient) ListAccounts(ctx context.Context, in *api.ListAccountsRequest, opts ...grpc.CallOption) (*api.ListAccountsResponse, error) {
	return invoke[api.ListAccountsResponse](ctx, c.cc, "ListAccounts", in, opts)
}

func (c *LedgerServiceClient) GetBalance(ctx context.Context, in *api.GetBalanceRequest, opts ...grpc.CallOption) (*api.GetBalanceResponse, error) {
	return invoke[api.GetBalanceResponse](ctx, c.cc, "GetBalance", in, opts)
}
