package roundtrip

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

type tHelper interface {
	Helper()
}

// Compare 使用默认 Classifier 比较 expected 与 actual。
func Compare(expected, actual any) error {
	return defaultClassifier.Compare(expected, actual)
}

// AssertEqualsOrSame 断言读回的值与写入的值一致：值类型比较内容，其余要求是同一个实例。
func AssertEqualsOrSame(t assert.TestingT, expected, actual any) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return assertCompare(t, defaultClassifier, "", expected, actual)
}

// AssertEqualsOrSameMsg 与 AssertEqualsOrSame 相同，失败信息附带 msg。
func AssertEqualsOrSameMsg(t assert.TestingT, msg string, expected, actual any) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return assertCompare(t, defaultClassifier, msg, expected, actual)
}

func assertCompare(t assert.TestingT, c *Classifier, msg string, expected, actual any) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	err := c.Compare(expected, actual)
	if err == nil {
		return true
	}
	if msg == "" {
		return assert.Fail(t, err.Error())
	}
	return assert.Fail(t, err.Error(), msg)
}

// CheckEOF 再读一个原始字节，确认流已经结束。
// 读到数据时返回 merr.ErrMissingEOF，读取失败但不是 io.EOF 时原样返回该错误。
func CheckEOF(in marshalling.ObjectInput) error {
	b, err := in.ReadByte()
	switch {
	case err == nil:
		return merr.WrapErrMissingEOF(b)
	case errors.Is(err, io.EOF):
		return nil
	default:
		return err
	}
}

// AssertEOF 断言 in 中没有更多数据。
func AssertEOF(t assert.TestingT, in marshalling.ObjectInput) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return assert.NoError(t, CheckEOF(in), "expected end of stream")
}
