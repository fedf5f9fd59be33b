package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestSlogServiceLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Info("hello", LogFields{"provider": "dummy"})

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "provider=dummy") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestSlogServiceLoggerErrorIncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.Error("boom", errors.New("kaput"), nil)

	if !strings.Contains(buf.String(), "kaput") {
		t.Fatalf("expected error in output, got %q", buf.String())
	}
}

func TestWithReturnsEnrichedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.With(LogFields{"tenant": "acme"}).Info("scoped", nil)

	if !strings.Contains(buf.String(), "tenant=acme") {
		t.Fatalf("expected tenant field, got %q", buf.String())
	}
}

type captureAdapter struct {
	infos  []string
	fields []watermill.LogFields
}

func (c *captureAdapter) Error(msg string, err error, fields watermill.LogFields) {}
func (c *captureAdapter) Info(msg string, fields watermill.LogFields) {
	c.infos = append(c.infos, msg)
	c.fields = append(c.fields, fields)
}
func (c *captureAdapter) Debug(msg string, fields watermill.LogFields) {}
func (c *captureAdapter) Trace(msg string, fields watermill.LogFields) {}
func (c *captureAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return c
}

func TestWatermillServiceLoggerWarnKeepsSeverity(t *testing.T) {
	capture := &captureAdapter{}
	logger := NewWatermillServiceLogger(capture)

	logger.Warn("drop", LogFields{"event_type": "tick"})

	if len(capture.infos) != 1 {
		t.Fatalf("expected 1 info entry, got %d", len(capture.infos))
	}
	if capture.fields[0]["severity"] != "warn" {
		t.Fatalf("expected severity=warn field, got %v", capture.fields[0])
	}
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	adapter := NewWatermillAdapter(base)

	adapter.Info("from watermill", watermill.LogFields{"topic": "events"})
	adapter.Trace("trace msg", nil)

	out := buf.String()
	if !strings.Contains(out, "from watermill") || !strings.Contains(out, "topic=events") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "trace msg") {
		t.Fatalf("expected trace mapped to debug, got %q", out)
	}
}
