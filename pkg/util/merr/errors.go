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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

type ErrorType int32

const (
	// SystemError 表示引擎或会话本身的失败。
	SystemError ErrorType = 0
	// AssertionError 表示往返结果与写入值不一致，属于被测引擎的缺陷。
	AssertionError ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError:    "system_error",
	AssertionError: "assertion_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Round trip assertion related
	ErrPresenceMismatch = newMarshalError("unexpected presence mismatch", 100, false, WithErrorType(AssertionError))
	ErrEqualityDefect   = newMarshalError("value changed after round trip", 101, false, WithErrorType(AssertionError))
	ErrIdentityDefect   = newMarshalError("instance identity not preserved", 102, false, WithErrorType(AssertionError))
	ErrMissingEOF       = newMarshalError("no EOF", 103, false, WithErrorType(AssertionError))
	ErrPrematureEOF     = newMarshalError("premature end of stream", 104, false)

	// Configuration related
	ErrConfigInvalid   = newMarshalError("invalid marshalling configuration", 200, false)
	ErrConfigClone     = newMarshalError("fail to clone marshalling configuration", 201, false)
	ErrConfigNotLoaded = newMarshalError("configuration not loaded", 202, false)

	// Session related
	ErrSessionCreate   = newMarshalError("fail to create session", 300, false)
	ErrSessionFinished = newMarshalError("session already finished", 301, false)
	ErrSessionFinish   = newMarshalError("fail to finish session", 302, false)
	ErrSessionNotBound = newMarshalError("session not bound to a stream", 303, false)

	// Stream related
	ErrVersionMismatch  = newMarshalError("unsupported protocol version", 400, false)
	ErrInvalidStream    = newMarshalError("invalid stream", 401, false)
	ErrStreamCorrupted  = newMarshalError("stream corrupted", 402, false)
	ErrFrameTooLarge    = newMarshalError("frame too large", 403, false)
	ErrIoFailed         = newMarshalError("IO failed", 404, true)
	ErrUnexpectedRecord = newMarshalError("unexpected record", 405, false)

	// Class resolution related
	ErrUnknownType      = newMarshalError("type not registered", 500, false)
	ErrTypeConflict     = newMarshalError("type name already registered", 501, false)
	ErrPayloadEncode    = newMarshalError("fail to encode object payload", 502, false)
	ErrPayloadDecode    = newMarshalError("fail to decode object payload", 503, false)
	ErrExternalizer     = newMarshalError("externalizer failed", 504, false)
	ErrUnsupportedValue = newMarshalError("unsupported value", 505, false)

	// General
	ErrParameterInvalid      = newMarshalError("invalid parameter", 1100, false)
	ErrOperationNotSupported = newMarshalError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to marshalError
	errUnexpected = newMarshalError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*marshalError)

func WithErrorType(etype ErrorType) errorOption {
	return func(err *marshalError) {
		err.errType = etype
	}
}

type marshalError struct {
	msg       string
	retriable bool
	errCode   int32
	errType   ErrorType
	cause     error
}

func newMarshalError(msg string, code int32, retriable bool, options ...errorOption) marshalError {
	err := marshalError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e marshalError) code() int32 {
	return e.errCode
}

func (e marshalError) Error() string {
	return e.msg
}

// Unwrap 返回底层错误，使 errors.Is(err, io.EOF) 之类的判断可以穿透错误码包装。
func (e marshalError) Unwrap() error {
	return e.cause
}

func (e marshalError) Is(err error) bool {
	var target marshalError
	if errors.As(err, &target) {
		return e.errCode == target.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多个错误时以最后一个作为 cause，使 Code 等方法能够正常工作。
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 将多个错误合并为一个，nil 会被忽略；全部为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
