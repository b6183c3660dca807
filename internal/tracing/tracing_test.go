package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/hllm/internal/model"
)

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), model.TracingConfig{Exporter: "none"}, "test", nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_Unknown(t *testing.T) {
	_, err := Init(context.Background(), model.TracingConfig{Exporter: "zipkin"}, "test", nil)
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("Expected ErrUnknownExporter, got %v", err)
	}
}

func TestInit_StdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), model.TracingConfig{Exporter: "stdout", ServiceName: "hllm-test"}, "test", &buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "orchestrator.dispatch")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if !strings.Contains(buf.String(), "orchestrator.dispatch") {
		t.Errorf("Expected span in stdout export, got: %s", buf.String())
	}
}
