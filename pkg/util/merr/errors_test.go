// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrSessionNotFound("abc123")
	errors.Wrap(err, "failed to dispatch response")
	s.ErrorIs(err, ErrSessionNotFound)
	s.Equal(Code(ErrSessionNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))

	sameCodeErr := newReplError("new error", ErrSessionNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrSessionNotFound))
}

func (s *ErrSuite) TestWrap() {
	// 连接相关错误。
	s.ErrorIs(WrapErrConnect("localhost:1234", errors.New("connection refused")), ErrConnect)
	s.ErrorIs(WrapErrConnectionClosed("clone", "receive queue ended"), ErrConnectionClosed)
	s.ErrorIs(WrapErrHalted("halt already requested"), ErrHalted)

	// 协议相关错误。
	s.ErrorIs(WrapErrProtocol(errors.New("bencode: bad prefix")), ErrProtocol)
	s.ErrorIs(WrapErrResponseMissing("new-session", "clone reply"), ErrResponseMissing)

	// 会话相关错误。
	s.ErrorIs(WrapErrSessionNotFound("abc123", "failed to dispatch"), ErrSessionNotFound)
	s.ErrorIs(WrapErrSessionDuplicate("abc123"), ErrSessionDuplicate)
	s.ErrorIs(WrapErrScopeNotFound(7, "deregister"), ErrScopeNotFound)

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalidMsg("port %d out of range", 123456), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("host", "no host configured"), ErrParameterMissing)
}

func (s *ErrSuite) TestRetriable() {
	s.True(IsRetryableErr(ErrConnect))
	s.False(IsRetryableErr(ErrConnectionClosed))
	s.False(IsRetryableErr(errors.New("not a repl error")))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrSessionDuplicate("a"), WrapErrSessionNotFound("b"))
	s.Equal(Code(ErrSessionNotFound), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
