package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitDirFreshDirectory(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := initDir(&buf, dir); err != nil {
		t.Fatalf("initDir failed: %v", err)
	}

	for _, sub := range []string{"data", "docs"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil {
			t.Errorf("expected directory %s: %v", sub, err)
		} else if !info.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}

	cfg, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if !bytes.Contains(cfg, []byte("gemini:")) {
		t.Error("config.yaml missing gemini section")
	}

	if _, err := os.Stat(filepath.Join(dir, "docs", "faq.md")); err != nil {
		t.Fatalf("docs/faq.md not created: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "config.yaml") {
		t.Error("output missing config.yaml")
	}
	if !strings.Contains(out, "faq.md") {
		t.Error("output missing faq.md")
	}
}

func TestInitDirSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := initDir(&buf, dir); err != nil {
		t.Fatalf("first initDir failed: %v", err)
	}

	sentinel := []byte("# customized, do not overwrite\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), sentinel, 0o600); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	buf.Reset()
	if err := initDir(&buf, dir); err != nil {
		t.Fatalf("second initDir failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("read config.yaml after second run: %v", err)
	}
	if !bytes.Equal(got, sentinel) {
		t.Errorf("config.yaml was overwritten: got %q", got)
	}
}
