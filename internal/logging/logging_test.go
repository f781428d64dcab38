package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: WarnLevel, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("warn line", String("k", "v"))
	l.Error("error line")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("expected debug/info suppressed at warn level, got: %s", out)
	}
	if !strings.Contains(out, "[WARNING] warn line k=v") {
		t.Errorf("missing warn line: %s", out)
	}
	if !strings.Contains(out, "[ERROR] error line") {
		t.Errorf("missing error line: %s", out)
	}
}

func TestParseLevelAcceptsWarningSpelling(t *testing.T) {
	if ParseLevel("warning") != WarnLevel {
		t.Error("warning should parse to WarnLevel")
	}
	if ParseLevel("bogus") != InfoLevel {
		t.Error("unknown level should default to InfoLevel")
	}
}

func TestWithComponentPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: DebugLevel, Output: &buf})
	child := l.WithComponent("phy")
	child.Info("locked")
	if !strings.Contains(buf.String(), "[phy]") {
		t.Errorf("expected component prefix, got: %s", buf.String())
	}
}
