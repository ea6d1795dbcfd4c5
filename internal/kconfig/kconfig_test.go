package kconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultBootsFourImages(t *testing.T) {
	c := Default()
	got := c.Images()
	if len(got) != 4 {
		t.Fatalf("got %d default images, want 4: %v", len(got), got)
	}
}

func TestNamedImageOverridesDefaults(t *testing.T) {
	c := Config{HZ: 100, Image: "hello"}
	got := c.Images()
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v, want [hello]", got)
	}
}

func TestLoadDecodesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weensy.toml")
	if err := os.WriteFile(path, []byte("hz = 50\nimage = \"hello\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HZ != 50 || c.Image != "hello" {
		t.Fatalf("got %+v, want HZ=50 Image=hello", c)
	}
}
