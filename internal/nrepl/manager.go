package nrepl

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/oconnor0/tutkain/pkg/log"
	"github.com/oconnor0/tutkain/pkg/util/conc"
	"github.com/oconnor0/tutkain/pkg/util/merr"
)

// ManagerConfig 描述连接管理器的拨号行为。
type ManagerConfig struct {
	// DialRetries 为拨号的最大重试次数，0 表示不重试。
	DialRetries uint64 `mapstructure:"dial-retries" json:"dial-retries"`
	// DialBackoffInitial 为首次重试前的等待时间。
	DialBackoffInitial time.Duration `mapstructure:"dial-backoff-initial" json:"dial-backoff-initial"`
	// DialBackoffMax 为单次重试等待时间的上限。
	DialBackoffMax time.Duration `mapstructure:"dial-backoff-max" json:"dial-backoff-max"`
}

// DefaultManagerConfig 返回默认的拨号配置。
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DialRetries:        3,
		DialBackoffInitial: 200 * time.Millisecond,
		DialBackoffMax:     2 * time.Second,
	}
}

// Manager 管理按归属域划分的连接及其上的会话。
//
// 说明：
//   - 会话注册表由 Manager 显式构造并持有，不是任何形式的全局状态；
//   - 每个归属域至多一条连接，域内的所有会话共享这条连接；
//   - 连接层自身不做重试，拨号重试发生在这里（调用方一侧）。
type Manager struct {
	log.Binder

	cfg ManagerConfig

	registry *SessionRegistry

	mu      sync.Mutex
	clients map[int64]*Client
}

// NewManager 创建一个连接管理器。
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg:      cfg,
		registry: NewSessionRegistry(),
		clients:  make(map[int64]*Client),
	}
	m.SetLogger(log.With(log.FieldComponent("nrepl.manager")))
	return m
}

// Registry 返回管理器持有的会话注册表。
func (m *Manager) Registry() *SessionRegistry {
	return m.registry
}

// Connect 为归属域建立连接并启动其后台协程。
//
// 行为：
//   - 域已存在连接时直接返回该连接；
//   - 拨号失败按指数退避重试，次数由配置决定，ctx 取消随时生效。
func (m *Manager) Connect(ctx context.Context, host string, port int, scope int64) (*Client, error) {
	m.mu.Lock()
	if client, found := m.clients[scope]; found {
		m.mu.Unlock()
		return client, nil
	}
	m.mu.Unlock()

	client := NewClient(host, port, m.registry)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.DialBackoffInitial
	policy.MaxInterval = m.cfg.DialBackoffMax

	err := backoff.Retry(func() error {
		return client.Connect(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, m.cfg.DialRetries), ctx))
	if err != nil {
		return nil, err
	}

	if err := client.Go(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, found := m.clients[scope]; found {
		// 并发 Connect 竞争失败的一方放弃自己的连接。
		client.Halt()
		return existing, nil
	}
	m.clients[scope] = client

	m.Logger().Info("scope connected",
		zap.Int64("scope", scope),
		zap.String("addr", client.Addr()))
	return client, nil
}

// GetClient 返回归属域对应的连接。
func (m *Manager) GetClient(scope int64) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, found := m.clients[scope]
	return client, found
}

// CloneSession 在归属域的连接上创建新会话并注册到两个索引中。
// clone 往返受 ctx 约束：超时或取消时返回 ctx 的错误，此时连接
// 上可能残留一个无人认领的会话。
func (m *Manager) CloneSession(ctx context.Context, scope int64, owner string) (*Session, error) {
	client, found := m.GetClient(scope)
	if !found {
		return nil, merr.WrapErrScopeNotFound(scope)
	}

	future := conc.Go(func() (*Session, error) {
		return client.CloneSession()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-future.Done():
	}

	session, err := future.Await()
	if err != nil {
		return nil, err
	}

	if err := m.registry.Register(scope, owner, session); err != nil {
		return nil, err
	}

	m.Logger().Debug("session registered",
		zap.Int64("scope", scope),
		zap.String("owner", owner),
		log.FieldSession(session.ID()))
	return session, nil
}

// Deregister 关闭归属域的连接并移除其全部会话。
func (m *Manager) Deregister(scope int64) {
	m.mu.Lock()
	client, found := m.clients[scope]
	delete(m.clients, scope)
	m.mu.Unlock()

	m.registry.Deregister(scope)
	if found {
		client.Halt()
	}
}

// Shutdown 终止所有连接并等待每条连接的接收协程完成清理。
// 等待受 ctx 约束；返回第一个等待超时的错误。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	clients := maps.Values(m.clients)
	maps.Clear(m.clients)
	m.mu.Unlock()

	m.registry.Wipe()

	g, ctx := errgroup.WithContext(ctx)
	for _, client := range clients {
		client := client
		g.Go(func() error {
			client.Halt()
			select {
			case <-client.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}
