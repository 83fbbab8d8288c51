package telemetry

import (
	"context"
	"log/slog"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// LogHandler passes every record to next and also emits it through the
// global OTel logger provider. Install it after [Setup].
type LogHandler struct {
	next   slog.Handler
	logger otellog.Logger
	attrs  []otellog.KeyValue
	group  string
}

// NewLogHandler wraps next. scope names the OTel instrumentation scope.
func NewLogHandler(next slog.Handler, scope string) *LogHandler {
	return &LogHandler{next: next, logger: global.GetLoggerProvider().Logger(scope)}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	var rec otellog.Record
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(r.Message))
	rec.SetSeverity(severity(r.Level))
	rec.SetSeverityText(r.Level.String())
	rec.AddAttributes(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttributes(convertAttr(h.group, a)...)
		return true
	})
	h.logger.Emit(ctx, rec)

	return h.next.Handle(ctx, r)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append([]otellog.KeyValue(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, convertAttr(h.group, a)...)
	}
	return &clone
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.group = prefixed(h.group, name)
	return &clone
}

func severity(l slog.Level) otellog.Severity {
	switch {
	case l >= slog.LevelError:
		return otellog.SeverityError
	case l >= slog.LevelWarn:
		return otellog.SeverityWarn
	case l >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}

func prefixed(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

// convertAttr flattens a slog attribute, groups included, to OTel key/values.
func convertAttr(group string, a slog.Attr) []otellog.KeyValue {
	v := a.Value.Resolve()
	key := prefixed(group, a.Key)
	switch v.Kind() {
	case slog.KindGroup:
		var out []otellog.KeyValue
		for _, ga := range v.Group() {
			out = append(out, convertAttr(key, ga)...)
		}
		return out
	case slog.KindString:
		return []otellog.KeyValue{otellog.String(key, v.String())}
	case slog.KindInt64:
		return []otellog.KeyValue{otellog.Int64(key, v.Int64())}
	case slog.KindUint64:
		return []otellog.KeyValue{otellog.Int64(key, int64(v.Uint64()))} //nolint:gosec // counters never exceed int64
	case slog.KindFloat64:
		return []otellog.KeyValue{otellog.Float64(key, v.Float64())}
	case slog.KindBool:
		return []otellog.KeyValue{otellog.Bool(key, v.Bool())}
	default:
		return []otellog.KeyValue{otellog.String(key, v.String())}
	}
}
