package grpc

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// DefaultKeepalive 客戶端 keepalive 預設值
// Time 不可小於 server 端 EnforcementPolicy.MinTime (5s)，否則會被 GOAWAY
var DefaultKeepalive = keepalive.ClientParameters{
	Time:                10 * time.Second,
	Timeout:             time.Second,
	PermitWithoutStream: true,
}

// Pool 每個 target 只維護一條 *grpc.ClientConn，可併發使用
// 連線預設使用 JSON codec (帳本服務沒有 protobuf stub)
type Pool struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn

	interceptors []grpc.UnaryClientInterceptor
	keepalive    keepalive.ClientParameters
	dialOpts     []grpc.DialOption
}

// PoolOption Pool 的可選設定
type PoolOption func(*Pool)

// WithInterceptor 加入 UnaryClientInterceptor (logging、metrics、token 注入)
// 可多次呼叫，依加入順序串接
func WithInterceptor(interceptor grpc.UnaryClientInterceptor) PoolOption {
	return func(p *Pool) {
		if interceptor != nil {
			p.interceptors = append(p.interceptors, interceptor)
		}
	}
}

// WithKeepalive 覆寫 keepalive 參數
func WithKeepalive(params keepalive.ClientParameters) PoolOption {
	return func(p *Pool) {
		p.keepalive = params
	}
}

// WithDialOptions 附加到每條新連線的 DialOption (例如測試用的 bufconn dialer)
func WithDialOptions(opts ...grpc.DialOption) PoolOption {
	return func(p *Pool) {
		p.dialOpts = append(p.dialOpts, opts...)
	}
}

// NewPool 建立連線池
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		conns:     make(map[string]*grpc.ClientConn),
		keepalive: DefaultKeepalive,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetConnection 取得 target 的連線，不存在或已 Shutdown 時建立新的
//
// 參數:
//
//	target: string - 目標地址 (e.g., "localhost:50051")
//	opts: ...grpc.DialOption - 只套用在這次新建立的連線
//
// 回傳值:
//
//	*grpc.ClientConn: 連線 (lazy，第一次呼叫時才真正連線)
//	error: 建立失敗
func (p *Pool) GetConnection(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, ok := p.conns[target]
	p.mu.RUnlock()
	if ok && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 取得寫鎖期間可能已被其他 goroutine 建好
	if conn, ok := p.conns[target]; ok {
		if conn.GetState() != connectivity.Shutdown {
			return conn, nil
		}
		delete(p.conns, target)
	}

	conn, err := grpc.NewClient(target, p.dialOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for target %s: %w", target, err)
	}
	p.conns[target] = conn
	return conn, nil
}

func (p *Pool) dialOptions(extra []grpc.DialOption) []grpc.DialOption {
	opts := []grpc.DialOption{
		// 內部服務走私有網路，不加 TLS
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(p.keepalive),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if len(p.interceptors) > 0 {
		opts = append(opts, grpc.WithChainUnaryInterceptor(p.interceptors...))
	}
	opts = append(opts, p.dialOpts...)
	return append(opts, extra...)
}

// Len 目前持有的連線數
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Close 關閉所有連線並清空連線池，回傳第一個遇到的錯誤
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for target, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, target)
	}
	return firstErr
}
