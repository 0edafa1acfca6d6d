package roundtrip

import (
	"fmt"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling"
	"github.com/lk2023060901/danmu-marshalling/pkg/log"
)

// Variant 是一组 Provider 与协议版本的组合，同一批用例会在每个 Variant 上各跑一遍。
type Variant struct {
	Name          string
	Marshallers   marshalling.MarshallerProvider
	Unmarshallers marshalling.UnmarshallerProvider
	Version       int
}

func (v Variant) String() string {
	return v.Name
}

// Variants 生成 fresh/pooled 两种 Provider 与全部受支持协议版本的组合。
func Variants() []Variant {
	fresh := marshalling.NewFreshProvider()
	pooled := marshalling.NewPooledProvider(0)
	var out []Variant
	for _, p := range []struct {
		name string
		mp   marshalling.MarshallerProvider
		up   marshalling.UnmarshallerProvider
	}{
		{marshalling.ProviderFresh, fresh, fresh},
		{marshalling.ProviderPooled, pooled, pooled},
	} {
		for v := marshalling.MinVersion; v <= marshalling.MaxVersion; v++ {
			out = append(out, Variant{
				Name:          fmt.Sprintf("%s/v%d", p.name, v),
				Marshallers:   p.mp,
				Unmarshallers: p.up,
				Version:       v,
			})
		}
	}
	return out
}

// Suite 是往返用例的 testify 基类。嵌入 Suite 的测试套件需要在 SetupSuite 之前设置 Variant 与 Base，
// 或直接使用 NewSuite；每个测试通过 RunRoundTrip 驱动一次往返。
type Suite struct {
	suite.Suite

	Variant    Variant
	Base       *marshalling.Configuration
	Classifier *Classifier

	driver *Driver
}

// NewSuite 以 variant 与基础配置构造 Suite，基础配置的协议版本被设置为 variant 的版本。
func NewSuite(variant Variant, base *marshalling.Configuration) Suite {
	return Suite{Variant: variant, Base: base}
}

func (s *Suite) SetupSuite() {
	if s.Base == nil {
		s.Base = marshalling.DefaultConfiguration()
	}
	if s.Variant.Marshallers == nil || s.Variant.Unmarshallers == nil {
		fresh := marshalling.NewFreshProvider()
		s.Variant.Marshallers, s.Variant.Unmarshallers = fresh, fresh
	}
	if s.Variant.Version != 0 {
		base, err := s.Base.Clone()
		s.Require().NoError(err)
		base.Version = s.Variant.Version
		s.Base = base
	}
	if s.Classifier == nil {
		s.Classifier = DefaultClassifier()
	}
	// 往返过程的日志写入 t.Log，只在失败或 -v 时可见。
	lg, _, err := log.InitTestLogger(s.T(), &log.Config{Level: "debug", DisableCaller: true})
	s.Require().NoError(err)
	s.driver = NewDriver(s.Variant.Marshallers, s.Variant.Unmarshallers, s.Base,
		WithLogger(&log.MLogger{Logger: lg.With(log.FieldModule("roundtrip"))}))
}

// Driver 返回当前套件的 Driver。
func (s *Suite) Driver() *Driver {
	return s.driver
}

// RunRoundTrip 执行一次往返并要求成功。
func (s *Suite) RunRoundTrip(test ReadWriteTest) {
	s.T().Helper()
	s.Require().NoError(s.driver.Run(test), "variant %s", s.Variant)
}

// AssertEqualsOrSame 使用套件的 Classifier 比较写入值与读回值。
func (s *Suite) AssertEqualsOrSame(expected, actual any) bool {
	s.T().Helper()
	return assertCompare(s.T(), s.Classifier, "", expected, actual)
}

// AssertEqualsOrSameMsg 与 AssertEqualsOrSame 相同，失败信息附带 msg。
func (s *Suite) AssertEqualsOrSameMsg(msg string, expected, actual any) bool {
	s.T().Helper()
	return assertCompare(s.T(), s.Classifier, msg, expected, actual)
}

// AssertEOF 断言 in 中没有更多数据。
func (s *Suite) AssertEOF(in marshalling.ObjectInput) bool {
	s.T().Helper()
	return AssertEOF(s.T(), in)
}
