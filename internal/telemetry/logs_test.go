package telemetry

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/njoerd114/wpmirror/internal/config"
)

func TestLogHandler_ForwardsToNext(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHandler(slog.NewTextHandler(&buf, nil), "test")
	logger := slog.New(h).With("collection", "posts").WithGroup("sync")

	logger.Info("sync complete", "added", 3)

	out := buf.String()
	for _, want := range []string{"sync complete", "collection=posts", "sync.added=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}), "test")
	slog.New(h).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
}

func TestConvertAttr_FlattensGroups(t *testing.T) {
	kvs := convertAttr("", slog.Group("page", slog.Int("number", 2), slog.Bool("last", true)))
	if len(kvs) != 2 {
		t.Fatalf("got %d key/values", len(kvs))
	}
	if kvs[0].Key != "page.number" || kvs[0].Value.AsInt64() != 2 {
		t.Errorf("kvs[0] = %v", kvs[0])
	}
	if kvs[1].Key != "page.last" || !kvs[1].Value.AsBool() {
		t.Errorf("kvs[1] = %v", kvs[1])
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug},
		{slog.LevelInfo, otellog.SeverityInfo},
		{slog.LevelWarn, otellog.SeverityWarn},
		{slog.LevelError + 4, otellog.SeverityError},
	}
	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(nil, "1.0"); ok {
		t.Error("FromConfig(nil) ok = true")
	}
	cfg, ok := FromConfig(&config.TelemetryConfig{OTLPEndpoint: "localhost:4317", Insecure: true}, "1.0")
	if !ok || cfg.OTLPEndpoint != "localhost:4317" || !cfg.Insecure || cfg.ServiceVersion != "1.0" {
		t.Errorf("cfg = %+v, ok = %v", cfg, ok)
	}
}
