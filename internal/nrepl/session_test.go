package nrepl

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/oconnor0/tutkain/pkg/util/merr"
)

// fakeSender 记录会话发出的操作和输出，替代真实连接。
// enqueueErr 非空时，enqueue 返回该错误，模拟已停止的连接。
type fakeSender struct {
	mu         sync.Mutex
	ops        []Operation
	outputs    []Response
	enqueueErr error
	halted     bool
}

var _ sender = (*fakeSender)(nil)

func (f *fakeSender) enqueue(op Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakeSender) output(resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, resp)
	return nil
}

func (f *fakeSender) Halt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted = true
}

func (f *fakeSender) sentOps() []Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Operation(nil), f.ops...)
}

func (f *fakeSender) queued() []Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Response(nil), f.outputs...)
}

type SessionSuite struct {
	suite.Suite

	client  *fakeSender
	session *Session
}

func (s *SessionSuite) SetupTest() {
	s.client = &fakeSender{}
	s.session = newSession("session-1", s.client)
}

func (s *SessionSuite) TestStampSetsProtocolFields() {
	s.NoError(s.session.Send(Eval("(inc 1)"), nil))

	ops := s.client.sentOps()
	s.Require().Len(ops, 1)
	op := ops[0]
	s.Equal("session-1", op["session"])
	s.Equal(int64(1), op["id"])
	s.Equal("true", op["nrepl.middleware.caught/print?"])
	s.Equal("true", op["nrepl.middleware.print/stream?"])
}

func (s *SessionSuite) TestOpIDsStrictlyIncreasing() {
	for i := 0; i < 100; i++ {
		s.NoError(s.session.Send(Eval("nil"), nil))
	}

	ops := s.client.sentOps()
	s.Require().Len(ops, 100)
	prev := int64(0)
	for _, op := range ops {
		id := op["id"].(int64)
		s.Greater(id, prev)
		prev = id
	}
}

func (s *SessionSuite) TestOpIDsUniqueUnderConcurrentSenders() {
	const senders = 8
	const perSender = 64

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				s.NoError(s.session.Send(Eval("nil"), nil))
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]struct{})
	for _, op := range s.client.sentOps() {
		id := op["id"].(int64)
		_, dup := seen[id]
		s.False(dup, "duplicate op id %d", id)
		seen[id] = struct{}{}
	}
	s.Len(seen, senders*perSender)
}

func (s *SessionSuite) TestDispatchInvokesHandler() {
	var got []Response
	s.NoError(s.session.Send(Eval("(inc 1)"), func(resp Response) {
		got = append(got, resp)
	}))

	s.session.dispatch(Response{"id": int64(1), "value": "2"})
	s.session.dispatch(Response{"id": int64(1), "status": []any{"done"}})

	s.Len(got, 2)
	s.Equal(0, s.session.pendingHandlers())
}

func (s *SessionSuite) TestDispatchWithoutHandlerRoutesToOutput() {
	s.NoError(s.session.Send(Eval("(inc 1)"), nil))

	resp := Response{"id": int64(1), "value": "2"}
	s.session.dispatch(resp)

	queued := s.client.queued()
	s.Require().Len(queued, 1)
	s.Equal(resp, queued[0])
}

func (s *SessionSuite) TestDuplicateDoneIsNoop() {
	calls := 0
	s.NoError(s.session.Send(Eval("nil"), func(Response) { calls++ }))

	done := Response{"id": int64(1), "status": []any{"done"}}
	s.session.dispatch(done)
	s.Equal(0, s.session.pendingHandlers())

	// 迟到或重复的 done 不应引起任何变化。
	s.session.dispatch(done)
	s.session.dispatch(done)
	s.Equal(0, s.session.pendingHandlers())
	s.Equal(1, calls)
}

func (s *SessionSuite) TestDoneWithExtraTokensCleansUp() {
	s.NoError(s.session.Send(Eval("nil"), func(Response) {}))

	s.session.dispatch(Response{"id": int64(1), "status": []any{"done", "error"}})
	s.Equal(0, s.session.pendingHandlers())
}

func (s *SessionSuite) TestDenounce() {
	resp := Response{"id": int64(7), "err": "boom"}
	s.False(s.session.IsDenounced(resp))

	s.session.Denounce(resp)
	s.True(s.session.IsDenounced(resp))
	s.True(s.session.IsDenounced(Response{"id": int64(7)}))
	s.False(s.session.IsDenounced(Response{"id": int64(8)}))

	// 没有 id 的响应不可标记。
	s.session.Denounce(Response{"err": "boom"})
	s.False(s.session.IsDenounced(Response{"err": "boom"}))
}

func (s *SessionSuite) TestDenouncementClearedOnDone() {
	s.NoError(s.session.Send(Eval("nil"), func(Response) {}))

	errResp := Response{"id": int64(1), "err": "boom"}
	s.session.Denounce(errResp)
	s.True(s.session.IsDenounced(errResp))

	s.session.dispatch(Response{"id": int64(1), "status": []any{"done"}})
	s.False(s.session.IsDenounced(errResp))
}

func (s *SessionSuite) TestEnqueueFailureReleasesHandler() {
	s.client.enqueueErr = merr.WrapErrHalted()

	err := s.session.Send(Eval("nil"), func(Response) {})
	s.ErrorIs(err, merr.ErrHalted)

	// 入队失败的操作不在途，handler 表不留无主条目。
	s.Equal(0, s.session.pendingHandlers())

	// 后续发送仍按原计数器继续分配 id。
	s.client.enqueueErr = nil
	s.NoError(s.session.Send(Eval("nil"), nil))
	ops := s.client.sentOps()
	s.Require().Len(ops, 1)
	s.Equal(int64(2), ops[0]["id"])
}

func (s *SessionSuite) TestTerminateHaltsClient() {
	s.session.Terminate()
	s.True(s.client.halted)
}

func TestSession(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}
