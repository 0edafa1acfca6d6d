package application

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-marshalling/internal/marshalling"
	"github.com/lk2023060901/danmu-marshalling/internal/roundtrip"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

const sampleConfig = `
log:
  level: warn
logging:
  roundtrip:
    level: debug
marshalling:
  version: 2
  bufferSize: 128
  payloadFormat: cbor
  compression: snappy
  properties:
    owner: qa
roundtrip:
  provider: pooled
  sinkSize: 256
  parallelism: 3
`

type ApplicationSuite struct {
	suite.Suite
	dir string
}

func (s *ApplicationSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.T().Setenv(ConfigPathEnv, "")
}

func (s *ApplicationSuite) writeConfig(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ApplicationSuite) TestRunWithFlag() {
	path := s.writeConfig("rt.yaml", sampleConfig)
	app := New(WithArgs([]string{"--config", path}), WithRegisterer(prometheus.NewRegistry()))
	s.Require().NoError(app.Run())

	base := app.Configuration()
	s.Require().NotNil(base)
	s.Equal(2, base.Version)
	s.Equal(128, base.BufferSize)
	s.Equal(marshalling.DefaultInstanceCount, base.InstanceCount)
	s.Equal("cbor", base.PayloadFormat)
	s.Equal("snappy", base.Compression)
	s.Equal("qa", base.Properties["owner"])

	settings := app.Settings()
	s.Equal(marshalling.ProviderPooled, settings.Provider)
	s.Equal(256, settings.SinkSize)
	s.Equal(3, settings.Parallelism)

	mp, up := app.Providers()
	s.IsType(&marshalling.PooledProvider{}, mp)
	s.Same(mp, up)

	s.NotNil(app.Config())
	s.NotNil(app.Logger("roundtrip"))
	s.NotNil(app.Logger("absent"))
}

func (s *ApplicationSuite) TestFlagWithEquals() {
	path := s.writeConfig("eq.yaml", "roundtrip:\n  provider: FRESH\n")
	app := New(WithArgs([]string{"-v", "--config=" + path}))
	s.Require().NoError(app.Run())
	s.Equal(marshalling.ProviderFresh, app.Settings().Provider)
	s.Equal(roundtrip.DefaultSinkSize, app.Settings().SinkSize)
	s.Equal(marshalling.DefaultBufferSize, app.Configuration().BufferSize)
}

func (s *ApplicationSuite) TestEnvPath() {
	path := s.writeConfig("env.yaml", "marshalling:\n  version: 1\n")
	s.T().Setenv(ConfigPathEnv, path)
	app := New(WithArgs(nil))
	s.Require().NoError(app.Run())
	s.Equal(1, app.Configuration().Version)
}

func (s *ApplicationSuite) TestMissingFlagValue() {
	app := New(WithArgs([]string{"--config"}))
	s.ErrorIs(app.Run(), merr.ErrParameterInvalid)
}

func (s *ApplicationSuite) TestMissingFile() {
	app := New(WithArgs([]string{"--config", filepath.Join(s.dir, "absent.yaml")}))
	s.ErrorIs(app.Run(), merr.ErrConfigNotLoaded)

	_, err := app.Driver()
	s.ErrorIs(err, merr.ErrConfigNotLoaded)
}

func (s *ApplicationSuite) TestInvalidSections() {
	cases := map[string]string{
		"provider":    "roundtrip:\n  provider: shared\n",
		"sinkSize":    "roundtrip:\n  sinkSize: -1\n",
		"compression": "marshalling:\n  compression: lz4\n",
		"version":     "marshalling:\n  version: 9\n",
	}
	for name, content := range cases {
		s.Run(name, func() {
			path := s.writeConfig(name+".yaml", content)
			err := New(WithArgs([]string{"--config", path})).Run()
			s.ErrorIs(err, merr.ErrConfigInvalid)
		})
	}
}

func (s *ApplicationSuite) TestDriverRoundTrip() {
	registry := marshalling.NewTypeRegistry().MustRegister("app.Note", note{})
	path := s.writeConfig("rt.yaml", sampleConfig)
	app := New(WithArgs([]string{"--config", path}), WithTypeRegistry(registry))
	s.Require().NoError(app.Run())

	want := note{Text: "hello"}
	classifier := roundtrip.DefaultClassifier().With(
		roundtrip.WithTypeStrategy(reflect.TypeOf(note{}), roundtrip.StrategyEqual))
	test := roundtrip.ReadWriteFuncs{
		WriteFn: func(out marshalling.Marshaller) error {
			return out.WriteObject(want)
		},
		ReadFn: func(in marshalling.Unmarshaller) error {
			got, err := in.ReadObject()
			if err != nil {
				return err
			}
			return classifier.Compare(want, got)
		},
	}

	d, err := app.Driver()
	s.Require().NoError(err)
	s.NoError(d.Run(test))
	s.NoError(app.RunConcurrently(test, test, test))

	mp, _ := app.Providers()
	s.Equal(0, mp.(*marshalling.PooledProvider).Live())
}

type note struct {
	Text string
}

func TestApplication(t *testing.T) {
	suite.Run(t, new(ApplicationSuite))
}
