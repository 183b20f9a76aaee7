package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"0:a.avi", "1:b.avi"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(cfg.Sources, []string{"0:a.avi", "1:b.avi"}) {
		t.Fatalf("sources = %v", cfg.Sources)
	}
	if !cfg.Interactive() || cfg.SlideSlot != 0 || cfg.Framerate != 25 || cfg.SlideDir != "." {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.PerspectiveSlot != -1 || cfg.StartSlot != -1 || cfg.TransformPath != "transform.yml" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestParseTodisk(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--todisk", "0:a.avi"}, DefaultOutput},
		{[]string{"--todisk=talk.avi", "0:a.avi"}, "talk.avi"},
		{[]string{"-todisk=false", "0:a.avi"}, ""},
	}
	for _, tt := range tests {
		cfg, err := Parse(tt.args, io.Discard)
		if err != nil {
			t.Fatalf("Parse(%v): %v", tt.args, err)
		}
		if cfg.Output != tt.want {
			t.Errorf("Parse(%v) output = %q, want %q", tt.args, cfg.Output, tt.want)
		}
	}
}

func TestParseInterleaved(t *testing.T) {
	cfg, err := Parse([]string{"0:a.avi", "--slides=s", "0:b.avi:C", "--fps=30", "1:c.avi:-2"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(cfg.Sources, []string{"0:a.avi", "0:b.avi:C", "1:c.avi:-2"}) {
		t.Fatalf("sources = %v", cfg.Sources)
	}
	if cfg.SlideDir != "s" || cfg.Framerate != 30 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestFixedSlideImpliesFixedOnly(t *testing.T) {
	cfg, err := Parse([]string{"--fixedslide=title.png", "0:a.avi"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SlideSlot != FixedSlideOnly {
		t.Fatalf("slide slot = %d", cfg.SlideSlot)
	}

	cfg, err = Parse([]string{"--fixedslide=title.png", "--slideidx=1", "0:a.avi", "1:b.avi"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SlideSlot != 1 {
		t.Fatalf("explicit slide slot = %d", cfg.SlideSlot)
	}

	// flag order does not matter
	cfg, err = Parse([]string{"--slideidx=0", "--fixedslide=title.png", "0:a.avi"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SlideSlot != 0 {
		t.Fatalf("explicit slide slot = %d", cfg.SlideSlot)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(nil, io.Discard); !errors.Is(err, ErrNoDescriptors) {
		t.Fatalf("no args error = %v", err)
	}
	if _, err := Parse([]string{"--fps=0", "0:a.avi"}, io.Discard); err == nil {
		t.Fatal("expected error for zero fps")
	}
	if _, err := Parse([]string{"--bogus", "0:a.avi"}, io.Discard); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestLoadFileWithEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("COMBINE_TEST_TITLE=Weekly review\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("COMBINE_TEST_TITLE") })

	path := filepath.Join(dir, "run.yml")
	doc := `
sources:
  - "0:cam0.avi"
  - "1:cam1.avi"
title: "${COMBINE_TEST_TITLE}"
fixedslide: intro.png
fps: 30
encoder:
  codec: libx264
  preset: fast
viewer:
  addr: ":9000"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Parse([]string{"--config=" + path, "--fps=50", "2:cam2.avi"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Title != "Weekly review" {
		t.Errorf("title = %q", cfg.Title)
	}
	if cfg.Framerate != 50 {
		t.Errorf("flag should win over file, fps = %d", cfg.Framerate)
	}
	if cfg.Encoder.Codec != "libx264" || cfg.Encoder.Preset != "fast" || cfg.Viewer.Addr != ":9000" {
		t.Errorf("nested = %+v %+v", cfg.Encoder, cfg.Viewer)
	}
	if cfg.Viewer.JPEGQuality != 80 {
		t.Errorf("unset nested field lost its default: %d", cfg.Viewer.JPEGQuality)
	}
	if !reflect.DeepEqual(cfg.Sources, []string{"0:cam0.avi", "1:cam1.avi", "2:cam2.avi"}) {
		t.Errorf("sources = %v", cfg.Sources)
	}
	if cfg.SlideSlot != FixedSlideOnly {
		t.Errorf("slide slot = %d", cfg.SlideSlot)
	}
}

func TestLoadFileExplicitSlideSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yml")
	if err := os.WriteFile(path, []byte("fixedslide: a.png\nslideidx: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Parse([]string{"-config", path, "0:a.avi"}, io.Discard)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SlideSlot != 2 {
		t.Fatalf("slide slot = %d", cfg.SlideSlot)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := Parse([]string{"--config=/nonexistent/run.yml", "0:a.avi"}, io.Discard); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestWarningsAndLocation(t *testing.T) {
	cfg := Default()
	if len(cfg.Warnings()) != 0 {
		t.Fatalf("warnings = %v", cfg.Warnings())
	}
	cfg.SlideDir = "/data/slides"
	if len(cfg.Warnings()) != 1 {
		t.Fatalf("warnings = %v", cfg.Warnings())
	}

	cfg.Timezone = "UTC"
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
	cfg.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestFindConfigPath(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--config=a.yml"}, "a.yml"},
		{[]string{"-config", "b.yml", "0:x"}, "b.yml"},
		{[]string{"0:config"}, ""},
		{[]string{"--configure=x"}, ""},
	}
	for _, tt := range tests {
		if got := findConfigPath(tt.args); got != tt.want {
			t.Errorf("findConfigPath(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
