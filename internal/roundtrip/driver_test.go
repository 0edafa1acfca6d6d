package roundtrip

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling"
	"github.com/lk2023060901/danmu-marshalling/pkg/log"
	"github.com/lk2023060901/danmu-marshalling/pkg/metrics"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

func baseConfiguration() *marshalling.Configuration {
	registry := marshalling.NewTypeRegistry().
		MustRegister("rt.Point", &point{}).
		MustRegister("rt.Celsius", celsius(0))
	return marshalling.DefaultConfiguration(marshalling.WithTypeRegistry(registry))
}

// RoundTripSuite 在每个 Variant 上运行同一批往返用例。
type RoundTripSuite struct {
	Suite
}

func (s *RoundTripSuite) TestValuesAndSharedInstance() {
	x := &point{X: 3, Y: 4}
	s.RunRoundTrip(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error {
			for _, v := range []any{42, "abc", x, x} {
				if err := m.WriteObject(v); err != nil {
					return err
				}
			}
			return nil
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			s.Require().NoError(err)
			s.AssertEqualsOrSame(42, v)
			v, err = u.ReadObject()
			s.Require().NoError(err)
			s.AssertEqualsOrSame("abc", v)
			first, err := u.ReadObject()
			s.Require().NoError(err)
			second, err := u.ReadObject()
			s.Require().NoError(err)
			s.AssertEqualsOrSameMsg("shared X", first, second)
			s.Equal(x, first)
			// X 在读端是新实例，按实例比较应判为缺陷。
			s.ErrorIs(s.Classifier.Compare(x, first), merr.ErrIdentityDefect)
			s.AssertEOF(u)
			return nil
		},
	})
}

func (s *RoundTripSuite) TestNilRoundTrip() {
	s.RunRoundTrip(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error {
			return m.WriteObject(nil)
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			if err != nil {
				return err
			}
			s.AssertEqualsOrSame(nil, v)
			return CheckEOF(u)
		},
	})
}

func (s *RoundTripSuite) TestPrimitiveSequence() {
	s.RunRoundTrip(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error {
			return errors.CombineErrors(m.WriteInt32(7), m.WriteString("seven"))
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			i, err := u.ReadInt32()
			s.Require().NoError(err)
			s.AssertEqualsOrSame(int32(7), i)
			str, err := u.ReadString()
			s.Require().NoError(err)
			s.AssertEqualsOrSame("seven", str)
			return CheckEOF(u)
		},
	})
}

func (s *RoundTripSuite) TestNamedValueKind() {
	s.RunRoundTrip(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error {
			return m.WriteObject(celsius(-40))
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			s.Require().NoError(err)
			s.AssertEqualsOrSame(celsius(-40), v)
			return CheckEOF(u)
		},
	})
}

func (s *RoundTripSuite) TestSingletonKeepsIdentity() {
	origin := &point{}
	s.RunRoundTrip(ReadWriteFuncs{
		ConfigureReadFn: func(cfg *marshalling.Configuration) error {
			cfg.ObjectResolver = marshalling.NewSingletonResolver().MustRegister("origin", origin)
			return nil
		},
		ConfigureWriteFn: func(cfg *marshalling.Configuration) error {
			cfg.ObjectResolver = marshalling.NewSingletonResolver().MustRegister("origin", origin)
			return nil
		},
		WriteFn: func(m marshalling.Marshaller) error {
			return m.WriteObject(origin)
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			s.Require().NoError(err)
			s.AssertEqualsOrSame(origin, v)
			return CheckEOF(u)
		},
	})
}

func TestRoundTripVariants(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.Name, func(t *testing.T) {
			suite.Run(t, &RoundTripSuite{Suite: NewSuite(v, baseConfiguration())})
		})
	}
}

func TestVariants(t *testing.T) {
	variants := Variants()
	assert.Len(t, variants, 2*(marshalling.MaxVersion-marshalling.MinVersion+1))
	assert.Equal(t, "fresh/v1", variants[0].String())
	assert.Equal(t, "pooled/v3", variants[len(variants)-1].Name)
}

type DriverSuite struct {
	suite.Suite

	provider *marshalling.PooledProvider
	base     *marshalling.Configuration
	driver   *Driver
	// leaky 标记失败的往返会遗留未 Finish 的会话。
	leaky bool
}

func (s *DriverSuite) SetupTest() {
	s.provider = marshalling.NewPooledProvider(0)
	s.base = baseConfiguration()
	s.driver = NewDriver(s.provider, s.provider, s.base, WithSinkSize(64))
	s.leaky = false
}

func (s *DriverSuite) TearDownTest() {
	if !s.leaky {
		s.Equal(0, s.provider.Live(), "sessions must not outlive a successful round trip")
	}
}

func (s *DriverSuite) TestHookOrder() {
	var calls []string
	test := ReadWriteFuncs{
		ConfigureReadFn: func(*marshalling.Configuration) error {
			calls = append(calls, "configure-read")
			return nil
		},
		WriteFn: func(marshalling.Marshaller) error {
			calls = append(calls, "write")
			return nil
		},
		ConfigureWriteFn: func(*marshalling.Configuration) error {
			calls = append(calls, "configure-write")
			return nil
		},
		ReadFn: func(marshalling.Unmarshaller) error {
			calls = append(calls, "read")
			return nil
		},
	}
	s.NoError(s.driver.Run(test))
	s.Equal([]string{"configure-read", "write", "configure-write", "read"}, calls)
}

func (s *DriverSuite) TestConfigurationsAreIndependentClones() {
	before, err := s.base.Fingerprint()
	s.Require().NoError(err)

	var readCfg, writeCfg *marshalling.Configuration
	s.NoError(s.driver.Run(ReadWriteFuncs{
		ConfigureReadFn: func(cfg *marshalling.Configuration) error {
			s.NotSame(s.base, cfg)
			cfg.Compression = "zstd"
			cfg.Properties = map[string]any{"side": "read"}
			cfg.TypeRegistry.MustRegister("rt.Strings", []string{})
			readCfg = cfg
			return nil
		},
		ConfigureWriteFn: func(cfg *marshalling.Configuration) error {
			s.NotSame(readCfg, cfg)
			s.Equal("none", cfg.Compression, "write side starts from the base, not the read side")
			s.Nil(cfg.Properties)
			_, err := cfg.TypeRegistry.TypeOf("rt.Strings")
			s.ErrorIs(err, merr.ErrUnknownType)
			cfg.TypeRegistry.MustRegister("rt.Strings", []string{})
			writeCfg = cfg
			return nil
		},
		WriteFn: func(m marshalling.Marshaller) error {
			return m.WriteObject([]string{"a", "b"})
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			s.Require().NoError(err)
			s.Equal([]string{"a", "b"}, v)
			return CheckEOF(u)
		},
	}))
	s.NotNil(writeCfg)

	after, err := s.base.Fingerprint()
	s.Require().NoError(err)
	s.Equal(before, after)
	_, err = s.base.TypeRegistry.TypeOf("rt.Strings")
	s.ErrorIs(err, merr.ErrUnknownType)
}

func (s *DriverSuite) TestVersionCompatibility() {
	withVersions := func(write, read int) ReadWriteFuncs {
		return ReadWriteFuncs{
			ConfigureReadFn: func(cfg *marshalling.Configuration) error {
				cfg.Version = write
				return nil
			},
			ConfigureWriteFn: func(cfg *marshalling.Configuration) error {
				cfg.Version = read
				return nil
			},
			WriteFn: func(m marshalling.Marshaller) error {
				s.Equal(write, m.Version())
				return m.WriteObject(42)
			},
			ReadFn: func(u marshalling.Unmarshaller) error {
				v, err := u.ReadObject()
				s.Require().NoError(err)
				s.AssertCompare(42, v)
				return CheckEOF(u)
			},
		}
	}

	s.NoError(s.driver.Run(withVersions(1, 2)))
	err := s.driver.Run(withVersions(2, 1))
	s.ErrorIs(err, merr.ErrVersionMismatch)
}

func (s *DriverSuite) AssertCompare(expected, actual any) {
	s.T().Helper()
	s.NoError(Compare(expected, actual))
}

func (s *DriverSuite) TestErrorsPropagateUnwrapped() {
	errBoom := errors.New("boom")
	failures := testutil.ToFloat64(metrics.RoundTripTotal.WithLabelValues(metrics.FailLabel, metrics.PhaseWrite))

	err := s.driver.Run(ReadWriteFuncs{
		WriteFn: func(marshalling.Marshaller) error { return errBoom },
		ReadFn: func(marshalling.Unmarshaller) error {
			s.Fail("read must not run after a failed write")
			return nil
		},
	})
	s.Equal(errBoom, err)
	s.Equal(failures+1, testutil.ToFloat64(metrics.RoundTripTotal.WithLabelValues(metrics.FailLabel, metrics.PhaseWrite)))

	err = s.driver.Run(ReadWriteFuncs{
		ConfigureWriteFn: func(*marshalling.Configuration) error { return errBoom },
	})
	s.Equal(errBoom, err)

	err = s.driver.Run(ReadWriteFuncs{
		ReadFn: func(u marshalling.Unmarshaller) error {
			_, err := u.ReadObject()
			return err
		},
	})
	s.ErrorIs(err, merr.ErrPrematureEOF)
	s.leaky = true
}

func (s *DriverSuite) TestInvalidConfiguration() {
	err := s.driver.Run(ReadWriteFuncs{
		ConfigureReadFn: func(cfg *marshalling.Configuration) error {
			cfg.BufferSize = 1
			return nil
		},
	})
	s.ErrorIs(err, merr.ErrSessionCreate)
	s.ErrorIs(err, merr.ErrConfigInvalid)
}

type brokenOutput struct {
	marshalling.ByteOutput
}

func (brokenOutput) Flush() error {
	return io.ErrClosedPipe
}

func (s *DriverSuite) TestFinishFailure() {
	fresh := marshalling.NewFreshProvider()
	mp := marshalling.MarshallerProviderFunc(func(cfg *marshalling.Configuration, out marshalling.ByteOutput) (marshalling.Marshaller, error) {
		return fresh.CreateMarshaller(cfg, brokenOutput{out})
	})
	err := RunReadWriteTest(mp, fresh, s.base, ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error { return m.WriteObject(1) },
	})
	s.ErrorIs(err, merr.ErrSessionFinish)
	s.ErrorIs(err, io.ErrClosedPipe)
}

func (s *DriverSuite) TestMissingEOF() {
	err := s.driver.Run(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error {
			return errors.CombineErrors(m.WriteObject(1), m.WriteObject(2))
		},
		ReadFn: func(u marshalling.Unmarshaller) error {
			if _, err := u.ReadObject(); err != nil {
				return err
			}
			rec := &recordingT{}
			s.False(AssertEOF(rec, u))
			s.True(rec.failed())
			return nil
		},
	})
	s.NoError(err)

	err = s.driver.Run(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error { return m.WriteByte(9) },
		ReadFn:  func(u marshalling.Unmarshaller) error { return CheckEOF(u) },
	})
	s.ErrorIs(err, merr.ErrMissingEOF)
	s.True(merr.IsAssertionError(err))
	s.leaky = true
}

func (s *DriverSuite) TestLargeStreamGrowsSink() {
	text := strings.Repeat("0123456789", 5000)
	s.NoError(s.driver.Run(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error { return m.WriteObject(text) },
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			s.Require().NoError(err)
			s.Equal(text, v)
			return CheckEOF(u)
		},
	}))
}

func (s *DriverSuite) TestRunConcurrently() {
	tests := make([]ReadWriteTest, 0, 32)
	for i := range 32 {
		shared := &point{X: i}
		tests = append(tests, ReadWriteFuncs{
			WriteFn: func(m marshalling.Marshaller) error {
				return errors.CombineErrors(m.WriteObject(shared), m.WriteObject(shared))
			},
			ReadFn: func(u marshalling.Unmarshaller) error {
				a, err := u.ReadObject()
				if err != nil {
					return err
				}
				b, err := u.ReadObject()
				if err != nil {
					return err
				}
				if err := Compare(a, b); err != nil {
					return err
				}
				if a.(*point).X != i {
					return errors.Newf("round trip %d read %v", i, a)
				}
				return CheckEOF(u)
			},
		})
	}
	s.NoError(s.driver.RunConcurrently(4, tests...))
	s.NoError(s.driver.RunConcurrently(4))
}

func (s *DriverSuite) TestRunConcurrentlyCollectsFailures() {
	errBoom := errors.New("boom")
	err := s.driver.RunConcurrently(2,
		ReadWriteFuncs{},
		ReadWriteFuncs{WriteFn: func(marshalling.Marshaller) error { return errBoom }},
		ReadWriteFuncs{WriteFn: func(marshalling.Marshaller) error { panic("exploded") }},
	)
	s.Error(err)
	s.ErrorIs(err, errBoom)
	s.Contains(err.Error(), "exploded")
	s.leaky = true
}

// lockedSyncer 收集日志输出，可被并发写入。
type lockedSyncer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedSyncer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedSyncer) Sync() error { return nil }

func (l *lockedSyncer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func (s *DriverSuite) TestDiagnosticLogs() {
	out := &lockedSyncer{}
	lg, _, err := log.InitLoggerWithWriteSyncer(&log.Config{Level: "debug", Format: log.FormatJSON}, out)
	s.Require().NoError(err)
	d := NewDriver(s.provider, s.provider, s.base, WithLogger(&log.MLogger{Logger: lg}))
	s.Same(lg, d.Logger().Logger)

	s.NoError(d.Run(ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error { return m.WriteObject(7) },
		ReadFn: func(u marshalling.Unmarshaller) error {
			if _, err := u.ReadObject(); err != nil {
				return err
			}
			return CheckEOF(u)
		},
	}))
	logs := out.String()
	for _, msg := range []string{"Read Configuration", "Marshaller created", "Write Configuration", "Unmarshaller created"} {
		s.Contains(logs, `"msg":"`+msg+`"`)
	}
	s.Contains(logs, `"intent":"round-trip"`)
	s.Contains(logs, `"traceID":`)
	s.Contains(logs, `"`+log.FieldNameSession+`":`)

	errBoom := errors.New("boom")
	s.ErrorIs(d.RunConcurrently(2, ReadWriteFuncs{
		WriteFn: func(marshalling.Marshaller) error { return errBoom },
	}), errBoom)
	s.Contains(out.String(), "concurrent round trip failed")
	s.Contains(out.String(), `"retriable":false`)
	s.leaky = true
}

func TestDriver(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}

func TestRunReadWriteTest(t *testing.T) {
	fresh := marshalling.NewFreshProvider()
	err := RunReadWriteTest(fresh, fresh, baseConfiguration(), ReadWriteFuncs{
		WriteFn: func(m marshalling.Marshaller) error { return m.WriteObject("abc") },
		ReadFn: func(u marshalling.Unmarshaller) error {
			v, err := u.ReadObject()
			require.NoError(t, err)
			AssertEqualsOrSame(t, "abc", v)
			return CheckEOF(u)
		},
	})
	assert.NoError(t, err)
}

func TestCheckEOFMissingEndFrame(t *testing.T) {
	fresh := marshalling.NewFreshProvider()
	cfg := baseConfiguration()

	var buf bytes.Buffer
	m, err := fresh.CreateMarshaller(cfg, marshalling.NewByteOutput(&buf))
	require.NoError(t, err)
	require.NoError(t, m.WriteObject("abc"))
	require.NoError(t, m.Finish())

	// 结束帧为 5 字节帧头加 8 字节校验和。
	data := buf.Bytes()[:buf.Len()-13]
	u, err := fresh.CreateUnmarshaller(cfg, marshalling.NewByteInput(bytes.NewReader(data)))
	require.NoError(t, err)
	v, err := u.ReadObject()
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	err = CheckEOF(u)
	assert.ErrorIs(t, err, merr.ErrInvalidStream)
	assert.False(t, AssertEOF(&recordingT{}, u))
	assert.ErrorIs(t, u.Finish(), merr.ErrSessionFinish)
}
