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
	"io"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrUnknownType("demo.Point")
	err = errors.Wrap(err, "failed to resolve class")
	s.ErrorIs(err, ErrUnknownType)
	s.Equal(Code(ErrUnknownType), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(errUnexpected.errCode, Code(io.EOF))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newMarshalError("new error", ErrUnknownType.errCode, false)
	s.True(sameCodeErr.Is(ErrUnknownType))
}

func (s *ErrSuite) TestCauseIsKept() {
	err := WrapErrIoFailed("read", io.ErrUnexpectedEOF)
	s.ErrorIs(err, ErrIoFailed)
	s.ErrorIs(err, io.ErrUnexpectedEOF)
	s.True(IsRetryableErr(err))
	s.Contains(err.Error(), "op=read")

	err = WrapErrSessionFinish("s-1", WrapErrIoFailed("flush", os.ErrClosed))
	s.ErrorIs(err, ErrSessionFinish)
	s.ErrorIs(err, ErrIoFailed)
	s.ErrorIs(err, os.ErrClosed)
	s.Equal(Code(ErrSessionFinish), Code(err))
	s.False(IsRetryableErr(err))
}

func (s *ErrSuite) TestErrorType() {
	s.True(IsAssertionError(WrapErrEqualityDefect(1, 2, "")))
	s.True(IsAssertionError(WrapErrIdentityDefect("*demo.X")))
	s.True(IsAssertionError(errors.Wrap(WrapErrMissingEOF(0x7f), "after read")))
	s.False(IsAssertionError(WrapErrVersionMismatch(2, 1)))
	s.False(IsAssertionError(nil))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))
	s.Equal("assertion_error", AssertionError.String())
}

func (s *ErrSuite) TestWrap() {
	// Assertion 相关错误。
	s.ErrorIs(WrapErrPresenceMismatch(true, "read back"), ErrPresenceMismatch)
	s.ErrorIs(WrapErrEqualityDefect(42, 43, "-42 +43", "int"), ErrEqualityDefect)
	s.ErrorIs(WrapErrIdentityDefect("*demo.X", "shared"), ErrIdentityDefect)
	s.ErrorIs(WrapErrMissingEOF(0x01, "trailing"), ErrMissingEOF)
	s.ErrorIs(WrapErrPrematureEOF(8, 3, "int64"), ErrPrematureEOF)

	// Configuration 相关错误。
	s.ErrorIs(WrapErrConfigInvalid("version", -1, "bad version"), ErrConfigInvalid)
	s.ErrorIs(WrapErrConfigInvalidRange("version", 9, 1, 3), ErrConfigInvalid)
	s.ErrorIs(WrapErrConfigClone(errors.New("copy failed")), ErrConfigClone)
	s.ErrorIs(WrapErrConfigNotLoaded("/tmp/roundtrip.yaml"), ErrConfigNotLoaded)

	// Session 相关错误。
	s.ErrorIs(WrapErrSessionCreate("marshaller", errors.New("boom")), ErrSessionCreate)
	s.ErrorIs(WrapErrSessionFinished("s-1"), ErrSessionFinished)
	s.ErrorIs(WrapErrSessionFinish("s-1", nil), ErrSessionFinish)
	s.ErrorIs(WrapErrSessionNotBound("s-1"), ErrSessionNotBound)

	// Stream 相关错误。
	s.ErrorIs(WrapErrVersionMismatch(2, 1), ErrVersionMismatch)
	s.ErrorIs(WrapErrInvalidStream("bad magic"), ErrInvalidStream)
	s.ErrorIs(WrapErrStreamCorrupted(1, 2), ErrStreamCorrupted)
	s.ErrorIs(WrapErrFrameTooLarge(1<<30, 1<<24), ErrFrameTooLarge)
	s.ErrorIs(WrapErrUnexpectedRecord("int32", 0x09), ErrUnexpectedRecord)

	// Class resolution 相关错误。
	s.ErrorIs(WrapErrTypeConflict("demo.Point", "a", "b"), ErrTypeConflict)
	s.ErrorIs(WrapErrPayloadEncode("msgpack", errors.New("cycle")), ErrPayloadEncode)
	s.ErrorIs(WrapErrPayloadDecode("cbor", errors.New("truncated")), ErrPayloadDecode)
	s.ErrorIs(WrapErrExternalizer("demo.Point", errors.New("nope")), ErrExternalizer)
	s.ErrorIs(WrapErrUnsupportedValue(make(chan int)), ErrUnsupportedValue)

	// General 错误。
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "value"), ErrParameterInvalid)
	s.ErrorIs(WrapErrOperationNotSupported("seek"), ErrOperationNotSupported)
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
	err := Combine(WrapErrUnknownType("a"), WrapErrSessionFinished("s-1"))
	s.Equal(Code(ErrSessionFinished), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
