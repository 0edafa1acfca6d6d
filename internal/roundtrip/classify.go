// Package roundtrip 以“先写后读”的往返方式验证可插拔的序列化引擎。
//
// Driver 负责编排一次往返：为读写两侧各克隆一份配置、交给用例定制、
// 通过 Provider 获取会话并依次执行写阶段与读阶段。用例在读阶段用 AssertEqualsOrSame
// 比较读回的值：值类型比较内容，引用类型要求是同一个实例。
package roundtrip

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// Strategy 决定一对值用哪种方式比较。
type Strategy int

const (
	// StrategyEqual 比较内容，引擎可以返回内容相同的新实例。
	StrategyEqual Strategy = iota
	// StrategySame 要求是同一个实例。
	StrategySame
)

func (s Strategy) String() string {
	switch s {
	case StrategyEqual:
		return "equal"
	case StrategySame:
		return "same"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// valueKinds 是按内容比较的值类型，其余 Kind 一律按实例比较。
var valueKinds = []reflect.Kind{
	reflect.Bool,
	reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
	reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
	reflect.Float32, reflect.Float64,
	reflect.Complex64, reflect.Complex128,
	reflect.String,
}

var cmpOptions = []cmp.Option{
	cmpopts.EquateNaNs(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// Classifier 是 Kind/类型到比较策略的不可变映射。类型覆盖优先于 Kind 表。
type Classifier struct {
	kinds map[reflect.Kind]Strategy
	types map[reflect.Type]Strategy
}

// ClassifierOption 在构造 Classifier 时调整映射。
type ClassifierOption func(*Classifier)

// WithKindStrategy 为某个 Kind 指定比较策略。
func WithKindStrategy(kind reflect.Kind, s Strategy) ClassifierOption {
	return func(c *Classifier) { c.kinds[kind] = s }
}

// WithTypeStrategy 为某个具体类型指定比较策略，例如把一个值语义的结构体标记为按内容比较。
func WithTypeStrategy(t reflect.Type, s Strategy) ClassifierOption {
	return func(c *Classifier) { c.types[t] = s }
}

var defaultClassifier = NewClassifier()

// DefaultClassifier 返回只包含默认值类型表的 Classifier。
func DefaultClassifier() *Classifier {
	return defaultClassifier
}

// NewClassifier 以默认值类型表为底，依次应用 opts 构造 Classifier。
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		kinds: make(map[reflect.Kind]Strategy, len(valueKinds)),
		types: make(map[reflect.Type]Strategy),
	}
	for _, k := range valueKinds {
		c.kinds[k] = StrategyEqual
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// With 返回在当前映射基础上再应用 opts 的新 Classifier，c 本身不变。
func (c *Classifier) With(opts ...ClassifierOption) *Classifier {
	next := &Classifier{
		kinds: maps.Clone(c.kinds),
		types: maps.Clone(c.types),
	}
	for _, opt := range opts {
		opt(next)
	}
	return next
}

// StrategyOf 返回 v 的比较策略。
func (c *Classifier) StrategyOf(v any) Strategy {
	if v == nil {
		return StrategyEqual
	}
	t := reflect.TypeOf(v)
	if s, ok := c.types[t]; ok {
		return s
	}
	if s, ok := c.kinds[t.Kind()]; ok {
		return s
	}
	return StrategySame
}

// Compare 比较写入值 expected 与读回值 actual。
//
//   - 任一为 nil 时两者都必须为 nil，否则返回 merr.ErrPresenceMismatch；
//   - 按内容比较的值不相等（动态类型不同也算）时返回 merr.ErrEqualityDefect；
//   - 按实例比较的值不是同一个实例时返回 merr.ErrIdentityDefect。
func (c *Classifier) Compare(expected, actual any) error {
	expectedNil, actualNil := isAbsent(expected), isAbsent(actual)
	if expectedNil || actualNil {
		if expectedNil && actualNil {
			return nil
		}
		return merr.WrapErrPresenceMismatch(expectedNil)
	}

	switch c.StrategyOf(expected) {
	case StrategyEqual:
		if reflect.TypeOf(expected) != reflect.TypeOf(actual) || !cmp.Equal(expected, actual, cmpOptions...) {
			return merr.WrapErrEqualityDefect(expected, actual, cmp.Diff(expected, actual, cmpOptions...))
		}
	default:
		if !sameInstance(reflect.ValueOf(expected), reflect.ValueOf(actual)) {
			return merr.WrapErrIdentityDefect(reflect.TypeOf(expected).String())
		}
	}
	return nil
}

// isAbsent 判断 v 是否为缺失值：无类型 nil 或值为 nil 的引用类型。
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// sameInstance 判断 a、b 是否为同一个实例。切片要求底层数组、长度与容量都相同；
// 结构体、数组等没有地址身份的值永远不是同一个实例。
func sameInstance(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Func, reflect.Map:
		return a.Pointer() == b.Pointer()
	case reflect.Slice:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len() && a.Cap() == b.Cap()
	default:
		return false
	}
}
