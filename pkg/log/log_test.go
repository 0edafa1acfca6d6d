package log

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type bufferSyncer struct {
	lines []string
}

func (b *bufferSyncer) Write(p []byte) (int, error) {
	b.lines = append(b.lines, string(p))
	return len(p), nil
}

func (b *bufferSyncer) Sync() error { return nil }

func TestInitLoggerWithWriteSyncer_JSON(t *testing.T) {
	out := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "trace", Format: FormatJSON, DisableTimestamp: true}, out)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())

	lg.Debug("Read Configuration", FieldVersion(2), FieldRole("reader"))
	require.Len(t, out.lines, 1)
	assert.Contains(t, out.lines[0], `"msg":"Read Configuration"`)
	assert.Contains(t, out.lines[0], `"version":2`)
	assert.NotContains(t, out.lines[0], `"ts"`)
}

func TestInitLoggerWithWriteSyncer_BadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, &bufferSyncer{})
	assert.Error(t, err)
}

func TestInitLogger_File(t *testing.T) {
	dir := t.TempDir()
	lg, props, err := InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: dir, Filename: "roundtrip.log"}})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())

	lg.Info("round trip finished")
	require.NoError(t, lg.Sync())
	content, err := os.ReadFile(filepath.Join(dir, "roundtrip.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "round trip finished")
}

func TestInitLogger_DirectoryAsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "taken"), 0o755))
	_, _, err := InitLogger(&Config{File: FileLogConfig{RootPath: dir, Filename: "taken"}})
	assert.Error(t, err)
}

func TestCtxLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)
	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	defer ReplaceGlobals(oldL, oldP)

	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()))

	ctx := WithSession(context.Background(), "writer", "s-1")
	l1 := Ctx(ctx)
	assert.Same(t, l1, Ctx(ctx))

	ctx = WithModule(ctx, "roundtrip")
	assert.NotSame(t, l1, Ctx(ctx))
	Ctx(ctx).Debug("session started")

	intentCtx, span := NewIntentContext(ctx, "roundtrip", "write")
	defer span.End()
	assert.NotNil(t, Ctx(intentCtx))
}

func TestIntoContext(t *testing.T) {
	var buf bufferSyncer
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: FormatJSON}, &buf)
	require.NoError(t, err)
	l := &MLogger{Logger: lg}

	ctx := IntoContext(context.Background(), l)
	assert.Same(t, l, Ctx(ctx))
	assert.Equal(t, context.Background(), IntoContext(context.Background(), nil))

	Ctx(WithSession(ctx, "marshaller", "s-2")).Debug("bound")
	require.Len(t, buf.lines, 1)
	assert.Contains(t, buf.lines[0], `"`+FieldNameSession+`":"s-2"`)
	assert.Contains(t, buf.lines[0], "bound")
}

func TestStdLoggerStartsAtDebug(t *testing.T) {
	lg, props := newStdLogger()
	require.NotNil(t, lg)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
}

func TestRatedLogger(t *testing.T) {
	l := With(zap.String("case", "rated")).WithRateGroup("test.rated", 1, 1)
	assert.True(t, l.RatedInfo(1, "first"))
	assert.False(t, l.RatedInfo(1, "second"))

	same := With().WithRateGroup("test.rated", 1, 1)
	assert.False(t, same.RatedDebug(1, "shared group"))

	assert.True(t, With().RatedWarn(0, "ungrouped logger falls back to the global limiter"))
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	l := With(FieldComponent("driver"))
	b.SetLogger(l)
	assert.Same(t, l, b.Logger())
}

func TestGetenv(t *testing.T) {
	t.Setenv("ROUNDTRIP_TEST_BOOL", "yes-please")
	assert.True(t, getenvBool("ROUNDTRIP_TEST_BOOL", true))
	t.Setenv("ROUNDTRIP_TEST_BOOL", "false")
	assert.False(t, getenvBool("ROUNDTRIP_TEST_BOOL", true))

	t.Setenv("ROUNDTRIP_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, getenvFloat("ROUNDTRIP_TEST_FLOAT", 1))
	t.Setenv("ROUNDTRIP_TEST_FLOAT", "x")
	assert.Equal(t, 1.0, getenvFloat("ROUNDTRIP_TEST_FLOAT", 1))
}
