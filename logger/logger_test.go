package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("normalizer")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "normalizer" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestEntryFieldChaining(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("grouper").WithFields(Fields{"block_id": "blk-1"})
	if entry.Entry.Data["component"] != "grouper" || entry.Entry.Data["block_id"] != "blk-1" {
		t.Fatalf("chained fields lost: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	log := Logger()
	entry := log.WithEnv("STORE_BACKEND")
	if v, ok := entry.Entry.Data["STORE_BACKEND"]; !ok || v != "redis" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestJSONOutputFieldNames(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "json", "stdout", 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithComponent("dispatcher").Info("alert delivered")

	out := buf.String()
	for _, key := range []string{`"timestamp"`, `"level"`, `"message"`, `"component"`} {
		if !strings.Contains(out, key) {
			t.Errorf("output missing %s: %s", key, out)
		}
	}
}
