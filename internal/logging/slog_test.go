package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger_Formats(t *testing.T) {
	var text bytes.Buffer
	NewLogger(&text, "text", false).Info("hello", "a", "b")
	if !strings.Contains(text.String(), "msg=hello") {
		t.Errorf("text output = %q", text.String())
	}

	var js bytes.Buffer
	NewLogger(&js, "JSON", false).Info("hello", "a", "b")
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json output not decodable: %v (%q)", err, js.String())
	}
	if decoded["a"] != "b" {
		t.Errorf("decoded[a] = %v", decoded["a"])
	}
}

func TestNewLogger_DebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, FormatText, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug output should be suppressed, got %q", buf.String())
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	WithRun(NewLogger(&buf, FormatText, false), "documents", "run-1").Info("x")
	out := buf.String()
	if !strings.Contains(out, "workflow=documents") || !strings.Contains(out, "run_id=run-1") {
		t.Errorf("missing run attributes: %s", out)
	}
}

func TestAttrHelpers(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantKey string
	}{
		{"operation", Operation("list").Key, Operation("list").Value.String(), KeyOperation},
		{"service", Service("drive").Key, Service("drive").Value.String(), KeyService},
		{"item", Item("msg-1").Key, Item("msg-1").Value.String(), KeyItemID},
		{"file", FileName("a.pdf").Key, FileName("a.pdf").Value.String(), KeyFileName},
		{"status", Status(StatusSkipped).Key, Status(StatusSkipped).Value.String(), KeyStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.key, tt.wantKey)
			}
			if tt.value == "" {
				t.Error("value should not be empty")
			}
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q", attr.Value.String())
	}

	if attr := Err(nil); attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	if got := AnonymizeEmail(""); got != "" {
		t.Errorf("AnonymizeEmail(\"\") = %q", got)
	}

	hash := AnonymizeEmail("grn@supplier.example")
	if len(hash) != 21 || !strings.HasPrefix(hash, "user:") {
		t.Errorf("unexpected hash %q", hash)
	}
	if hash != AnonymizeEmail("  GRN@supplier.example ") {
		t.Error("hash should ignore case and surrounding whitespace")
	}
	if hash == AnonymizeEmail("other@supplier.example") {
		t.Error("different emails should produce different hashes")
	}
	if Sender("grn@supplier.example").Value.String() != hash {
		t.Error("Sender attribute should carry the anonymized address")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := SanitizeToken(tt.token); result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}
