package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	tracer, shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tracer == nil {
		t.Fatal("Setup returned nil tracer")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer, shutdown, err := Setup(context.Background(), Config{
		Enabled:        true,
		ServiceVersion: "test",
		Writer:         &buf,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := tracer.Start(context.Background(), "test.operation")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "test.operation") {
		t.Errorf("exported spans missing test.operation:\n%s", buf.String())
	}
}
