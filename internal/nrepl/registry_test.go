package nrepl

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/oconnor0/tutkain/pkg/util/merr"
)

type RegistrySuite struct {
	suite.Suite

	registry *SessionRegistry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewSessionRegistry()
}

func (s *RegistrySuite) newSession(id string) (*Session, *fakeSender) {
	client := &fakeSender{}
	return newSession(id, client), client
}

func (s *RegistrySuite) TestRegisterAndLookup() {
	session, _ := s.newSession("abc")
	s.NoError(s.registry.Register(1, "user", session))

	got, found := s.registry.GetByID("abc")
	s.True(found)
	s.Same(session, got)

	got, found = s.registry.GetByOwner(1, "user")
	s.True(found)
	s.Same(session, got)

	_, found = s.registry.GetByID("missing")
	s.False(found)
	_, found = s.registry.GetByOwner(1, "plugin")
	s.False(found)
	_, found = s.registry.GetByOwner(2, "user")
	s.False(found)
}

func (s *RegistrySuite) TestRegisterDuplicate() {
	session, _ := s.newSession("abc")
	s.NoError(s.registry.Register(1, "user", session))

	err := s.registry.Register(2, "user", session)
	s.ErrorIs(err, merr.ErrSessionDuplicate)
	s.Equal(1, s.registry.Len())
}

func (s *RegistrySuite) TestDeregisterRemovesFromBothIndexes() {
	user, _ := s.newSession("abc")
	plugin, _ := s.newSession("def")
	other, _ := s.newSession("ghi")
	s.NoError(s.registry.Register(1, "user", user))
	s.NoError(s.registry.Register(1, "plugin", plugin))
	s.NoError(s.registry.Register(2, "user", other))

	s.registry.Deregister(1)

	_, found := s.registry.GetByID("abc")
	s.False(found)
	_, found = s.registry.GetByID("def")
	s.False(found)
	_, found = s.registry.GetByOwner(1, "user")
	s.False(found)

	// 其他归属域不受影响。
	got, found := s.registry.GetByID("ghi")
	s.True(found)
	s.Same(other, got)
}

func (s *RegistrySuite) TestDeregisterUnknownScope() {
	s.NotPanics(func() {
		s.registry.Deregister(42)
	})
}

func (s *RegistrySuite) TestWipeTerminatesEverySession() {
	first, firstClient := s.newSession("abc")
	second, secondClient := s.newSession("def")
	s.NoError(s.registry.Register(1, "user", first))
	s.NoError(s.registry.Register(2, "user", second))

	s.registry.Wipe()

	s.Equal(0, s.registry.Len())
	s.True(firstClient.halted)
	s.True(secondClient.halted)
	_, found := s.registry.GetByOwner(1, "user")
	s.False(found)
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
