package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFiles_OrderAndMissing(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.env")
	second := filepath.Join(dir, "b.env")
	if err := os.WriteFile(first, []byte("CX_TEST_A=one\nCX_TEST_B=first\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(second, []byte("# comment\nCX_TEST_B=\"second\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CX_TEST_A", "")
	t.Setenv("CX_TEST_B", "")

	if err := LoadEnvFiles(first, "", filepath.Join(dir, "missing.env"), second); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("CX_TEST_A"); got != "one" {
		t.Fatalf("CX_TEST_A = %q", got)
	}
	if got := os.Getenv("CX_TEST_B"); got != "second" {
		t.Fatalf("later file should win, CX_TEST_B = %q", got)
	}
}

func TestLoadEnvFiles_Malformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.env")
	if err := os.WriteFile(p, []byte("NOT VALID LINE WITH 'quote\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadEnvFiles(p); err == nil {
		t.Fatalf("expected parse error")
	}
}
