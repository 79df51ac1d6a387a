package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"info", InfoLevel, true},
		{"", InfoLevel, true},
		{"WARN", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"bogus", InfoLevel, false},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ParseLevel(%q) err=%v", c.in, err)
		}
		if err == nil && got != c.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("dropme")
	l.Warn("keepme")
	out := buf.String()
	if strings.Contains(out, "dropme") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "keepme") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.WithComponent("worker").Info("tick", Int("n", 3))
	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "n=3") {
		t.Fatalf("missing fields: %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("hello", Str("source", "srv-1"))
	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("not valid json: %v (%q)", err, buf.String())
	}
	if obj["msg"] != "hello" || obj["level"] != "INFO" || obj["source"] != "srv-1" {
		t.Fatalf("unexpected object: %v", obj)
	}
}

func TestFatalUsesExit(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	l := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf))).(*BaseLogger)
	l.exit = func(c int) { code = c }
	l.Fatal("boom")
	if code != 1 {
		t.Fatalf("want exit 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "FATAL boom") {
		t.Fatalf("missing fatal line: %q", buf.String())
	}
}
