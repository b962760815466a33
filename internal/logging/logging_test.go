package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("with default output", func(t *testing.T) {
		logger := NewLogger(Config{Level: InfoLevel})
		if logger == nil {
			t.Fatal("NewLogger returned nil")
		}
	})

	t.Run("with custom output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogger(Config{Level: InfoLevel, Output: buf})
		if logger.writer != buf {
			t.Error("Logger should use provided output writer")
		}
	})

	t.Run("empty level defaults to info", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogger(Config{Output: buf})
		logger.Debug("hidden", nil)
		if buf.Len() != 0 {
			t.Error("default level should filter debug messages")
		}
		logger.Info("visible", nil)
		if buf.Len() == 0 {
			t.Error("default level should pass info messages")
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		configLvl LogLevel
		logLvl    LogLevel
		shouldLog bool
	}{
		{"debug logs debug", DebugLevel, DebugLevel, true},
		{"info skips debug", InfoLevel, DebugLevel, false},
		{"info logs warn", InfoLevel, WarnLevel, true},
		{"warn skips info", WarnLevel, InfoLevel, false},
		{"error skips warn", ErrorLevel, WarnLevel, false},
		{"error logs error", ErrorLevel, ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewLogger(Config{Level: tt.configLvl, Output: buf})

			logger.log(tt.logLvl, "test message", nil)

			hasOutput := buf.Len() > 0
			if hasOutput != tt.shouldLog {
				t.Errorf("shouldLog = %v, but hasOutput = %v", tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{
		Level:  InfoLevel,
		Format: JSONFormat,
		Output: buf,
	})

	logger.Info("test message", map[string]interface{}{
		"count": 42,
		"name":  "test",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v\nOutput: %s", err, buf.String())
	}

	if entry["level"] != "info" {
		t.Errorf("level = %v, want 'info'", entry["level"])
	}
	if entry["message"] != "test message" {
		t.Errorf("message = %v, want 'test message'", entry["message"])
	}
	if entry["timestamp"] == nil {
		t.Error("timestamp should be present")
	}

	fields, ok := entry["fields"].(map[string]interface{})
	if !ok {
		t.Fatal("fields should be a map")
	}
	if fields["count"] != float64(42) { // JSON numbers are float64
		t.Errorf("fields.count = %v, want 42", fields["count"])
	}
}

func TestHumanFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{
		Level:  InfoLevel,
		Format: HumanFormat,
		Output: buf,
	})

	logger.Info("human readable", map[string]interface{}{
		"zkey": "value",
		"akey": 1,
	})

	output := buf.String()

	if !strings.Contains(output, "[info]") {
		t.Errorf("Output should contain '[info]', got: %s", output)
	}
	if !strings.Contains(output, "human readable") {
		t.Errorf("Output should contain message, got: %s", output)
	}
	// Fields come out sorted by key
	if strings.Index(output, "akey=1") > strings.Index(output, "zkey=value") {
		t.Errorf("Fields should be sorted by key, got: %s", output)
	}
}

func TestHumanFormatNoFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{
		Level:  InfoLevel,
		Format: HumanFormat,
		Output: buf,
	})

	logger.Info("no fields", nil)

	if strings.Contains(buf.String(), "|") {
		t.Errorf("Output without fields should not contain '|', got: %s", buf.String())
	}
}

func TestWith(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{Level: InfoLevel, Format: JSONFormat, Output: buf})

	child := logger.With(map[string]interface{}{"component": "builder"})
	child.Info("stage complete", map[string]interface{}{"stage": "scan"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	fields := entry["fields"].(map[string]interface{})
	if fields["component"] != "builder" {
		t.Errorf("child logger should carry base field, got %v", fields)
	}
	if fields["stage"] != "scan" {
		t.Errorf("child logger should merge call fields, got %v", fields)
	}

	// Parent is unaffected
	buf.Reset()
	logger.Info("plain", nil)
	var parent map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parent); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parent["fields"] != nil {
		t.Errorf("parent logger should not carry child fields, got %v", parent["fields"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	// Must not panic and must stay silent
	logger.Error("discarded", map[string]interface{}{"k": "v"})
}
