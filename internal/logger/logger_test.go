package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture sends output to a buffer at the given level and format, and
// restores the previous settings when the test ends.
func capture(t *testing.T, levelName, formatName string) *bytes.Buffer {
	t.Helper()

	mu.RLock()
	prevOut, prevColor, prevFormat := out, color, format
	mu.RUnlock()
	prevLevel := level.Level()

	buf := new(bytes.Buffer)
	InitWithWriter(buf, levelName, formatName, false)

	t.Cleanup(func() {
		mu.Lock()
		out, color, format = prevOut, prevColor, prevFormat
		mu.Unlock()
		level.Set(prevLevel)
		rebuild()
	})
	return buf
}

func lines(buf *bytes.Buffer) []string {
	s := strings.TrimRight(buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"DEBUG", []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{"INFO", []string{"INFO", "WARN", "ERROR"}},
		{"WARN", []string{"WARN", "ERROR"}},
		{"ERROR", []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := capture(t, tt.level, FormatText)

			Debug("d")
			Info("i")
			Warn("w")
			Error("e")

			got := lines(buf)
			require.Len(t, got, len(tt.want))
			for i, lvl := range tt.want {
				assert.Contains(t, got[i], lvl)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	capture(t, "INFO", FormatText)

	SetLevel("debug")
	assert.Equal(t, slog.LevelDebug, GetLevel())

	SetLevel("warning")
	assert.Equal(t, slog.LevelWarn, GetLevel())

	SetLevel("verbose")
	assert.Equal(t, slog.LevelWarn, GetLevel(), "unknown level must be ignored")
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" error ")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelError, l)

	_, ok = ParseLevel("trace")
	assert.False(t, ok)
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "DEBUG", FormatText)

	Info("state operation completed",
		Key("order-1"),
		Schema("acme-public"),
		"reason", "etag mismatch",
		"empty", "",
		DurationMs(1.5),
		Err(nil),
	)

	line := buf.String()
	assert.Contains(t, line, "INFO  state operation completed")
	assert.Contains(t, line, "key=order-1")
	assert.Contains(t, line, "schema=acme-public")
	assert.Contains(t, line, `reason="etag mismatch"`)
	assert.Contains(t, line, `empty=""`)
	assert.Contains(t, line, "duration_ms=1.500")
	assert.NotContains(t, line, "error=", "nil errors are dropped")
	assert.NotContains(t, line, "\033[", "colour is off")
}

func TestTextFormat_Color(t *testing.T) {
	buf := new(bytes.Buffer)
	h := newTextHandler(buf, nil, true)
	logger := slog.New(h)

	logger.Warn("careful", "key", "k")

	assert.Contains(t, buf.String(), styleWarn.color+"WARN "+ansiReset)
	assert.Contains(t, buf.String(), ansiKey+"key"+ansiReset+"=k")
}

func TestTextFormat_GroupsAndWith(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := slog.New(newTextHandler(buf, nil, false)).
		With(Component("orders")).
		WithGroup("db").
		With("pool", 5)

	logger.Info("opened", slog.Group("conn", "max", 25))

	line := buf.String()
	assert.Contains(t, line, "component=orders")
	assert.Contains(t, line, "db.pool=5")
	assert.Contains(t, line, "db.conn.max=25")
}

func TestTextFormat_Enabled(t *testing.T) {
	h := newTextHandler(new(bytes.Buffer), &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))

	h = newTextHandler(new(bytes.Buffer), nil, false)
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "INFO", FormatJSON)

	Error("upsert failed", Key("k1"), Err(errors.New("boom")), Attempt(2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "upsert failed", entry["msg"])
	assert.Equal(t, "k1", entry[KeyKey])
	assert.Equal(t, "boom", entry[KeyError])
	assert.Equal(t, float64(2), entry[KeyAttempt])
}

func TestFormatSwitching(t *testing.T) {
	buf := capture(t, "INFO", FormatText)

	Info("as text")
	SetFormat("JSON")
	Info("as json")
	SetFormat("xml")
	Info("still json")

	got := lines(buf)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "INFO  as text")
	assert.True(t, json.Valid([]byte(got[1])))
	assert.True(t, json.Valid([]byte(got[2])))
}

func TestContextLogging(t *testing.T) {
	buf := capture(t, "DEBUG", FormatJSON)

	lc := NewLogContext("set").
		WithTrace("trace-1", "span-1").
		WithLocation("acme", "acme-public", "state")
	ctx := WithContext(context.Background(), lc)

	WarnCtx(ctx, "etag mismatch", Key("k"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "set", entry[KeyOperation])
	assert.Equal(t, "trace-1", entry[KeyTraceID])
	assert.Equal(t, "span-1", entry[KeySpanID])
	assert.Equal(t, "acme", entry[KeyTenantID])
	assert.Equal(t, "acme-public", entry[KeySchema])
	assert.Equal(t, "state", entry[KeyTable])
	assert.Equal(t, "k", entry[KeyKey])
}

func TestContextLogging_NoContextFields(t *testing.T) {
	buf := capture(t, "DEBUG", FormatText)

	DebugCtx(context.Background(), "plain")
	InfoCtx(WithContext(context.Background(), NewLogContext("get")), "with op")

	got := lines(buf)
	require.Len(t, got, 2)
	assert.NotContains(t, got[0], "operation=")
	assert.Contains(t, got[1], "operation=get")
	assert.NotContains(t, got[1], "tenant_id=", "empty fields are skipped")
}

func TestLogContext(t *testing.T) {
	var nilLC *LogContext
	assert.Nil(t, nilLC.WithLocation("t", "s", "x"))
	assert.Nil(t, nilLC.WithTrace("a", "b"))
	assert.Zero(t, nilLC.DurationMs())
	assert.Nil(t, FromContext(context.Background()))

	lc := NewLogContext("transact")
	located := lc.WithLocation("t1", "t1-public", "state")
	assert.Empty(t, lc.TenantID, "WithLocation must not modify the receiver")
	assert.Equal(t, "t1", located.TenantID)
	assert.Equal(t, "transact", located.Operation)
	assert.GreaterOrEqual(t, located.DurationMs(), 0.0)
}

func TestWith(t *testing.T) {
	buf := capture(t, "INFO", FormatText)

	With(Component("orders")).Info("bound")

	assert.Contains(t, buf.String(), "component=orders")
}

func TestConcurrentLogging(t *testing.T) {
	buf := capture(t, "INFO", FormatText)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", Index(i), "j", j)
			}
		}(i)
	}
	wg.Wait()

	got := lines(buf)
	assert.Len(t, got, 20*50)
	for _, line := range got {
		assert.Contains(t, line, "INFO  concurrent")
	}
}

func TestInit_File(t *testing.T) {
	capture(t, "INFO", FormatText)
	path := filepath.Join(t.TempDir(), "pgstate.log")

	require.NoError(t, Init(Config{Level: "warn", Format: "text", Output: path}))
	t.Cleanup(func() {
		mu.Lock()
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
		mu.Unlock()
	})

	Info("dropped")
	Warn("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "\033[", "files never get colour")
}

func TestInit_BadFile(t *testing.T) {
	capture(t, "INFO", FormatText)

	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, KeyTenancy, Tenancy("schema").Key)
	assert.Equal(t, int64(3), MaxAttempts(3).Value.Int64())
	assert.Equal(t, "/tmp/x.sock", Socket("/tmp/x.sock").Value.String())
}
