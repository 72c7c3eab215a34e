package infra

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"schema-migrator/config"
)

// TraceHandler は現在のスパンのトレースIDをログレコードに付与するslogハンドラ。
// GOOGLE_CLOUD_PROJECTが設定されていればCloud Loggingが相関に使うキーも出力する。
type TraceHandler struct {
	next slog.Handler
	// tracePrefix は "projects/<id>/traces/" 。空ならCloud Logging用のキーは出さない。
	tracePrefix string
	enabled     bool
}

// NewTraceHandler はnextをラップしたTraceHandlerを生成する。
func NewTraceHandler(next slog.Handler, cfg *config.Config) *TraceHandler {
	h := &TraceHandler{next: next, enabled: cfg.OtelEnabled}
	if cfg.GoogleCloudProject != "" {
		h.tracePrefix = "projects/" + cfg.GoogleCloudProject + "/traces/"
	}
	return h
}

// Enabled はハンドラがログを処理するかどうかを返す。
func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle はスパンが有効な場合にトレース情報を付与してから次のハンドラに渡す。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.enabled {
		return h.next.Handle(ctx, r)
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return h.next.Handle(ctx, r)
	}

	traceID, spanID := sc.TraceID().String(), sc.SpanID().String()
	r.AddAttrs(
		slog.String("trace", traceID),
		slog.String("spanId", spanID),
		slog.Bool("traceSampled", sc.IsSampled()),
	)
	if h.tracePrefix != "" {
		r.AddAttrs(
			slog.String("logging.googleapis.com/trace", h.tracePrefix+traceID),
			slog.String("logging.googleapis.com/spanId", spanID),
		)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs は属性を追加した新しいハンドラを返す。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{next: h.next.WithAttrs(attrs), tracePrefix: h.tracePrefix, enabled: h.enabled}
}

// WithGroup はグループを追加した新しいハンドラを返す。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{next: h.next.WithGroup(name), tracePrefix: h.tracePrefix, enabled: h.enabled}
}

// ParseLogLevel はLOG_LEVELの文字列をslogのレベルに変換する。未知の値はINFO。
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// severityAttr はlevelキーをCloud Loggingが解釈するseverityキーに置き換える。
func severityAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		level, _ := a.Value.Any().(slog.Level)
		severity := "INFO"
		switch {
		case level >= slog.LevelError:
			severity = "ERROR"
		case level >= slog.LevelWarn:
			severity = "WARNING"
		case level < slog.LevelInfo:
			severity = "DEBUG"
		}
		return slog.String("severity", severity)
	}
	return a
}

// NewLogger はJSON形式でwに書き出すトレース情報付きロガーを生成する。
func NewLogger(w io.Writer, cfg *config.Config, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.GoogleCloudProject != "" {
		opts.ReplaceAttr = severityAttr
	}
	return slog.New(NewTraceHandler(slog.NewJSONHandler(w, opts), cfg))
}

// SetupLogger はグローバルロガーを設定する。
// CLIでは標準出力を結果表示に使うため、stderr=trueでログを標準エラーに出す。
func SetupLogger(cfg *config.Config, level slog.Level, stderr bool) {
	var out io.Writer = os.Stdout
	if stderr {
		out = os.Stderr
	}
	slog.SetDefault(NewLogger(out, cfg, level))
}
