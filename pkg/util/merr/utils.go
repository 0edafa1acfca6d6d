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
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Code 返回给定错误对应的错误码，会沿错误链查找第一个带错误码的错误。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	var mErr marshalError
	if errors.As(err, &mErr) {
		return mErr.code()
	}
	if errors.Is(err, context.Canceled) {
		return CanceledCode
	} else if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutCode
	}
	return errUnexpected.code()
}

func IsRetryableErr(err error) bool {
	var mErr marshalError
	if errors.As(err, &mErr) {
		return mErr.retriable
	}
	return false
}

func GetErrorType(err error) ErrorType {
	var mErr marshalError
	if errors.As(err, &mErr) {
		return mErr.errType
	}
	return SystemError
}

// IsAssertionError 判断 err 是否为往返断言失败（而非引擎或 IO 故障）。
func IsAssertionError(err error) bool {
	return err != nil && GetErrorType(err) == AssertionError
}

// Assertion 相关错误封装。
func WrapErrPresenceMismatch(expectedNil bool, msg ...string) error {
	err := wrapFields(ErrPresenceMismatch, value("expectedNil", expectedNil))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrEqualityDefect(expected, actual any, diff string, msg ...string) error {
	err := wrapFields(ErrEqualityDefect,
		value("expected", expected),
		value("actual", actual),
	)
	if diff != "" {
		err = wrapFieldsWithDesc(err.(marshalError), diff)
	}
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIdentityDefect(typeName string, msg ...string) error {
	err := wrapFields(ErrIdentityDefect, value("type", typeName))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrMissingEOF(next byte, msg ...string) error {
	err := wrapFields(ErrMissingEOF, value("next", fmt.Sprintf("0x%02x", next)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPrematureEOF(want, got int, msg ...string) error {
	err := wrapFields(ErrPrematureEOF, value("want", want), value("got", got))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Configuration 相关错误封装。
func WrapErrConfigInvalid[T any](key string, val T, msg ...string) error {
	err := wrapFields(ErrConfigInvalid, value(key, val))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrConfigInvalidRange[T any](key string, val, lower, upper T, msg ...string) error {
	err := wrapFields(ErrConfigInvalid, bound(key, val, lower, upper))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrConfigClone(cause error, msg ...string) error {
	err := wrapCause(ErrConfigClone, cause)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrConfigNotLoaded(path string, msg ...string) error {
	err := wrapFields(ErrConfigNotLoaded, value("path", path))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Session 相关错误封装。
func WrapErrSessionCreate(role string, cause error, msg ...string) error {
	err := wrapCause(ErrSessionCreate, cause, value("role", role))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionFinished(id string, msg ...string) error {
	err := wrapFields(ErrSessionFinished, value("session", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionFinish(id string, cause error, msg ...string) error {
	err := wrapCause(ErrSessionFinish, cause, value("session", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionNotBound(id string, msg ...string) error {
	err := wrapFields(ErrSessionNotBound, value("session", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Stream 相关错误封装。
func WrapErrVersionMismatch(streamVersion, readerVersion int, msg ...string) error {
	err := wrapFields(ErrVersionMismatch,
		value("stream", streamVersion),
		value("reader", readerVersion),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrInvalidStream(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrInvalidStream, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrStreamCorrupted(expected, actual uint64, msg ...string) error {
	err := wrapFields(ErrStreamCorrupted,
		value("expectedChecksum", fmt.Sprintf("%016x", expected)),
		value("actualChecksum", fmt.Sprintf("%016x", actual)),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFrameTooLarge(size, limit int, msg ...string) error {
	err := wrapFields(ErrFrameTooLarge, value("size", size), value("limit", limit))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIoFailed(op string, cause error, msg ...string) error {
	err := wrapCause(ErrIoFailed, cause, value("op", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUnexpectedRecord(expected string, actual byte, msg ...string) error {
	err := wrapFields(ErrUnexpectedRecord,
		value("expected", expected),
		value("actual", fmt.Sprintf("0x%02x", actual)),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Class resolution 相关错误封装。
func WrapErrUnknownType(name string, msg ...string) error {
	err := wrapFields(ErrUnknownType, value("type", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTypeConflict(name string, existing, incoming any, msg ...string) error {
	err := wrapFields(ErrTypeConflict,
		value("name", name),
		value("existing", existing),
		value("incoming", incoming),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPayloadEncode(format string, cause error, msg ...string) error {
	err := wrapCause(ErrPayloadEncode, cause, value("format", format))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPayloadDecode(format string, cause error, msg ...string) error {
	err := wrapCause(ErrPayloadDecode, cause, value("format", format))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrExternalizer(typeName string, cause error, msg ...string) error {
	err := wrapCause(ErrExternalizer, cause, value("type", typeName))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUnsupportedValue(v any, msg ...string) error {
	err := wrapFields(ErrUnsupportedValue, value("type", fmt.Sprintf("%T", v)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// General 错误封装。
func WrapErrParameterInvalidMsg(fmtMsg string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmtMsg, args...)
}

func WrapErrOperationNotSupported(op string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("op", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err marshalError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	return err
}

func wrapFieldsWithDesc(err marshalError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	return err
}

// wrapCause 在保留错误码的同时挂上底层错误，cause 为 nil 时等价于 wrapFields。
func wrapCause(err marshalError, cause error, fields ...errorField) error {
	if cause == nil {
		return wrapFields(err, fields...)
	}
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + cause.Error()
	err.cause = cause
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
