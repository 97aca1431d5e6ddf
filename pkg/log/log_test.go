package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	scierrors "github.com/YuminosukeSato/neurocpm/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestZerologLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("hidden", "k", 1)
	logger.Info("visible", SubjectsKey, 12)
	logger.Warn("careful", FoldKey, 3)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["message"] != "visible" || lines[0]["level"] != "info" {
		t.Errorf("unexpected first record: %v", lines[0])
	}
	if lines[0][SubjectsKey] != 12.0 {
		t.Errorf("expected %s=12, got %v", SubjectsKey, lines[0][SubjectsKey])
	}
	if lines[1]["level"] != "warn" {
		t.Errorf("expected warn level, got %v", lines[1]["level"])
	}
}

func TestZerologLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(&buf, LevelDebug)

	logger := provider.GetLoggerWithName("cpm").With(RunIDKey, "run-1")
	logger.Debug("fold done", FoldKey, 0, SelectedKey, 4)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d", len(lines))
	}
	rec := lines[0]
	if rec[ComponentKey] != "cpm" || rec[RunIDKey] != "run-1" || rec[SelectedKey] != 4.0 {
		t.Errorf("context fields missing: %v", rec)
	}

	provider.SetLevel(LevelError)
	logger.Info("suppressed")
	if len(decodeLines(t, &buf)) != 1 {
		t.Error("SetLevel should affect loggers already handed out")
	}
	if logger.Enabled(context.Background(), LevelWarn) {
		t.Error("warn should be disabled at error level")
	}
}

func TestZerologLoggerErrorWithStack(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	err := scierrors.NewDegenerateInputError("cpm.Predict", "zero variance", 2)
	logger.Error("predict failed", err, FoldKey, 2)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d", len(lines))
	}
	rec := lines[0]
	if !strings.Contains(fmt.Sprint(rec["error"]), "zero variance") {
		t.Errorf("error field missing: %v", rec)
	}
	if rec[FoldKey] != 2.0 {
		t.Errorf("fold field missing: %v", rec)
	}
}

func TestZerologLoggerObjectMarshaler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Warn("fallback", "warning", scierrors.NewDegenerateFoldWarning(1, 0, "no edges selected", 2.5))

	rec := decodeLines(t, &buf)[0]
	obj, ok := rec["warning"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured object, got %T", rec["warning"])
	}
	if obj["type"] != "DegenerateFoldWarning" || obj["fold"] != 1.0 {
		t.Errorf("unexpected object: %v", obj)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWarningsRouteToProvider(t *testing.T) {
	provider, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	scierrors.Warn(scierrors.NewConvergenceWarning("BayesianOptimizer", 3, "flat objective"))

	logger := provider.Logger()
	if !logger.ContainsField(ComponentKey, "warnings") {
		t.Error("warning should be logged by the warnings component")
	}
	if logger.CountLevel("WARN") != 1 {
		t.Errorf("expected one WARN record, got %d", logger.CountLevel("WARN"))
	}
}

func TestTestLogger(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationPredict)
	testLogger.Error("error message", fmt.Errorf("test error"), FoldKey, 1)

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty string")
	}
	for _, msg := range []string{"debug message", "info message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}
	if !testLogger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrorKey, "test error") {
		t.Error("leading error should be recorded under the error key")
	}
	if !testLogger.ContainsField(FoldKey, 1.0) {
		t.Error("fields after a leading error should stay paired")
	}

	ctxLogger := testLogger.With(ComponentKey, "cpm")
	ctxLogger.Warn("fallback")
	if !testLogger.ContainsField(ComponentKey, "cpm") {
		t.Error("With fields should be included")
	}

	testLogger.Clear()
	if buffer.Len() != 0 {
		t.Error("Clear should empty the buffer")
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" || Level(99).String() != "UNKNOWN" {
		t.Error("unexpected level names")
	}
}
