package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory TracerProvider as the global provider
// for the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default slog logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_UsesSumireVoxScope(t *testing.T) {
	exp := useTestTracer(t)

	_, span := StartSpan(context.Background(), "dictionary.UpsertWord")
	span.SetAttributes(attribute.String("dictionary.surface", "ｖｏｉｃｅｖｏｘ"))
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "dictionary.UpsertWord" {
		t.Errorf("span name = %q", got.Name)
	}
	if got.InstrumentationScope.Name != tracerName {
		t.Errorf("scope = %q, want %q", got.InstrumentationScope.Name, tracerName)
	}
	if got.Status.Code != codes.Unset {
		t.Errorf("status = %v, want unset for a successful operation", got.Status.Code)
	}
	if len(got.Attributes) != 1 || got.Attributes[0].Value.AsString() != "ｖｏｉｃｅｖｏｘ" {
		t.Errorf("attributes = %v", got.Attributes)
	}
}

func TestEndSpan_MarksFailure(t *testing.T) {
	exp := useTestTracer(t)

	_, span := StartSpan(context.Background(), "dictionary.DeleteWord")
	EndSpan(span, errors.New("voicevox: status 503"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Status.Code != codes.Error || got.Status.Description != "voicevox: status 503" {
		t.Errorf("status = %+v, want error with the message", got.Status)
	}
	if len(got.Events) != 1 || got.Events[0].Name != "exception" {
		t.Errorf("events = %v, want one recorded exception", got.Events)
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	useTestTracer(t)
	ids := make(map[string]struct{}, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "GET /api/dictionary")
		cid := CorrelationID(ctx)
		span.End()

		if cid != span.SpanContext().TraceID().String() {
			t.Fatalf("CorrelationID = %q, want the trace id", cid)
		}
		if len(cid) != 32 {
			t.Fatalf("correlation ID length = %d, want 32", len(cid))
		}
		if _, dup := ids[cid]; dup {
			t.Fatalf("duplicate correlation ID: %s", cid)
		}
		ids[cid] = struct{}{}
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)

	tests := []struct {
		name      string
		withSpan  bool
		wantTrace bool
	}{
		{name: "inside a span", withSpan: true, wantTrace: true},
		{name: "no span", withSpan: false, wantTrace: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx := context.Background()
			if tt.withSpan {
				spanCtx, span := StartSpan(ctx, "settings.Get")
				defer span.End()
				ctx = spanCtx
			}

			Logger(ctx).Info("guild settings loaded", "guild_id", int64(42))

			logged := buf.String()
			if !bytes.Contains(buf.Bytes(), []byte("guild_id=42")) {
				t.Errorf("log output missing guild_id: %s", logged)
			}
			for _, key := range []string{"trace_id=", "span_id="} {
				if got := bytes.Contains(buf.Bytes(), []byte(key)); got != tt.wantTrace {
					t.Errorf("contains %s = %v, want %v: %s", key, got, tt.wantTrace, logged)
				}
			}
		})
	}
}
