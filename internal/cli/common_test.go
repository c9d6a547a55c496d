package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Out: &buf}
	l.Info("hidden")
	l.Debug("hidden")
	l.Warn("careful %d", 1)
	l.Error("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info/debug should be suppressed: %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "careful 1") || !strings.Contains(out, "[ERROR]") {
		t.Fatalf("missing levels: %q", out)
	}

	buf.Reset()
	l.Verbose, l.DebugMode = true, true
	l.Info("i")
	l.Debug("d")
	if !strings.Contains(buf.String(), "[INFO]") || !strings.Contains(buf.String(), "[DEBUG]") {
		t.Fatalf("verbose output missing: %q", buf.String())
	}

	var nilLogger *Logger
	nilLogger.Warn("no panic")
}

func TestPrintVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "pyrite", true)
	var doc struct {
		Tool string      `json:"tool"`
		Info VersionInfo `json:"version_info"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc.Tool != "pyrite" || doc.Info.Version != Version {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestValidateArgs(t *testing.T) {
	err := ValidateArgs(nil, 1, "pyrite translate <file>")
	var ue *UsageError
	if !errors.As(err, &ue) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if ValidateArgs([]string{"a.py"}, 1, "") != nil {
		t.Fatalf("unexpected error")
	}
}
