package nrepl

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/oconnor0/tutkain/pkg/util/merr"
)

type ManagerSuite struct {
	suite.Suite

	manager *Manager
}

func (s *ManagerSuite) SetupTest() {
	s.manager = NewManager(DefaultManagerConfig())
}

func (s *ManagerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.NoError(s.manager.Shutdown(ctx))
}

func (s *ManagerSuite) connect(remote *fakeRemote, scope int64) *Client {
	host, port := remote.hostPort()
	client, err := s.manager.Connect(context.Background(), host, port, scope)
	s.Require().NoError(err)
	return client
}

func (s *ManagerSuite) TestConnectIsPerScope() {
	remote := newFakeRemote(s.T())

	first := s.connect(remote, 1)
	again := s.connect(remote, 1)
	s.Same(first, again)

	other := s.connect(remote, 2)
	s.NotSame(first, other)
}

func (s *ManagerSuite) TestConnectFailureAfterRetries() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	s.Require().NoError(ln.Close())

	cfg := DefaultManagerConfig()
	cfg.DialRetries = 1
	cfg.DialBackoffInitial = time.Millisecond
	manager := NewManager(cfg)

	_, err = manager.Connect(context.Background(), host, port, 1)
	s.Error(err)
	s.ErrorIs(err, merr.ErrConnect)
}

func (s *ManagerSuite) TestCloneSessionRegisters() {
	remote := newFakeRemote(s.T())
	s.connect(remote, 1)

	session, err := s.manager.CloneSession(context.Background(), 1, "user")
	s.Require().NoError(err)

	got, found := s.manager.Registry().GetByOwner(1, "user")
	s.True(found)
	s.Same(session, got)
	got, found = s.manager.Registry().GetByID(session.ID())
	s.True(found)
	s.Same(session, got)
}

func (s *ManagerSuite) TestCloneSessionUnknownScope() {
	_, err := s.manager.CloneSession(context.Background(), 99, "user")
	s.ErrorIs(err, merr.ErrScopeNotFound)
}

func (s *ManagerSuite) TestDeregisterHaltsScope() {
	remote := newFakeRemote(s.T())
	client := s.connect(remote, 1)

	_, err := s.manager.CloneSession(context.Background(), 1, "user")
	s.Require().NoError(err)

	s.manager.Deregister(1)

	_, found := s.manager.Registry().GetByOwner(1, "user")
	s.False(found)
	_, found = s.manager.GetClient(1)
	s.False(found)

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		s.FailNow("client did not halt")
	}
}

func (s *ManagerSuite) TestShutdownWaitsForCleanup() {
	remote := newFakeRemote(s.T())
	first := s.connect(remote, 1)
	second := s.connect(remote, 2)

	_, err := s.manager.CloneSession(context.Background(), 1, "user")
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.NoError(s.manager.Shutdown(ctx))

	s.Equal(0, s.manager.Registry().Len())
	for _, client := range []*Client{first, second} {
		select {
		case <-client.Done():
		case <-time.After(time.Second):
			s.FailNow("client cleanup did not finish")
		}
	}
}

func TestManager(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}
