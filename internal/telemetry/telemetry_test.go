package telemetry

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLogging_WritesRotatingFile(t *testing.T) {
	dir := t.TempDir()

	cleanup, err := SetupLogging(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Println("hello from the playground")
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "playground.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from the playground") {
		t.Fatalf("log line missing from file: %q", data)
	}
}

func TestInit_ExportsSpansOnShutdown(t *testing.T) {
	dir := t.TempDir()

	tracer, meter, cleanup, err := Init(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counter, err := meter.Int64Counter("test.counter")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	_, span := tracer.Start(context.Background(), "gemini.ask")
	counter.Add(context.Background(), 1)
	span.End()
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "traces.log"))
	if err != nil {
		t.Fatalf("read traces: %v", err)
	}
	if !strings.Contains(string(data), "gemini.ask") {
		t.Fatalf("span missing from trace export: %q", data)
	}
}

func TestInit_EmptyDirIsNoop(t *testing.T) {
	tracer, meter, cleanup, err := Init(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	_, span := tracer.Start(context.Background(), "noop")
	if span.IsRecording() {
		t.Fatalf("expected a non-recording span")
	}
	span.End()

	if _, err := meter.Int64Counter("noop"); err != nil {
		t.Fatalf("noop meter returned error: %v", err)
	}
}
