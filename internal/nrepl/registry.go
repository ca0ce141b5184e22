package nrepl

import (
	"strconv"
	"sync"

	"github.com/samber/lo"

	"github.com/oconnor0/tutkain/pkg/metrics"
	"github.com/oconnor0/tutkain/pkg/util/merr"
)

// SessionRegistry 维护同一组存活会话上的两个索引。
//
// 说明：
//   - 主索引按会话 id（1:1），供接收协程分发响应时查找；
//   - 次索引按 (归属域, 归属键)，供上层按归属关系查找；
//   - 两个索引在同一把锁下变更，保证彼此一致；
//   - 注册表只负责生命周期记账，不持有连接。终止会话委托给
//     会话所属 Client 的 Halt。
type SessionRegistry struct {
	mu      sync.Mutex
	byID    map[string]*Session
	byOwner map[int64]map[string]*Session
}

// NewSessionRegistry 创建一个空的会话注册表。
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byID:    make(map[string]*Session),
		byOwner: make(map[int64]map[string]*Session),
	}
}

// Register 将会话同时登记到两个索引中。
// 每个会话只允许在创建时注册一次，重复注册返回错误。
func (r *SessionRegistry) Register(scope int64, owner string, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.byID[session.ID()]; found {
		return merr.WrapErrSessionDuplicate(session.ID())
	}

	r.byID[session.ID()] = session
	byScope, found := r.byOwner[scope]
	if !found {
		byScope = make(map[string]*Session)
		r.byOwner[scope] = byScope
	}
	byScope[owner] = session

	metrics.SessionsActive.WithLabelValues(strconv.FormatInt(scope, 10)).Inc()
	return nil
}

// GetByID 按会话 id 查找会话。
func (r *SessionRegistry) GetByID(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, found := r.byID[id]
	return session, found
}

// GetByOwner 按 (归属域, 归属键) 查找会话。
func (r *SessionRegistry) GetByOwner(scope int64, owner string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byScope, found := r.byOwner[scope]
	if !found {
		return nil, false
	}
	session, found := byScope[owner]
	return session, found
}

// Deregister 将一个归属域下的所有会话从两个索引中移除。
// 不存在的归属域是无害的空操作。
func (r *SessionRegistry) Deregister(scope int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byScope, found := r.byOwner[scope]
	if !found {
		return
	}
	for _, session := range byScope {
		delete(r.byID, session.ID())
		metrics.SessionsActive.WithLabelValues(strconv.FormatInt(scope, 10)).Dec()
	}
	delete(r.byOwner, scope)
}

// Wipe 终止所有已注册的会话并清空两个索引。
func (r *SessionRegistry) Wipe() {
	r.mu.Lock()
	sessions := lo.Values(r.byID)
	r.byID = make(map[string]*Session)
	r.byOwner = make(map[int64]map[string]*Session)
	r.mu.Unlock()

	metrics.SessionsActive.Reset()

	// 在锁外终止会话，Halt 可能与接收协程产生交互。
	for _, session := range sessions {
		session.Terminate()
	}
}

// Len 返回当前注册的会话数量。
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
