package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := parseLevel(c.in); got != c.want {
			t.Errorf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("backend")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	out, ok := outW.(*lj.Logger)
	if !ok {
		t.Fatalf("stdout writer type %T", outW)
	}
	if want := filepath.Join(dir, "backend.stdout.log"); out.Filename != want {
		t.Fatalf("stdout filename = %q, want %q", out.Filename, want)
	}
	if out.MaxSize != DefaultMaxSizeMB || out.MaxBackups != DefaultMaxBackups || out.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("rotation defaults not applied: %+v", out)
	}
	errL, ok := errW.(*lj.Logger)
	if !ok {
		t.Fatalf("stderr writer type %T", errW)
	}
	if want := filepath.Join(dir, "backend.stderr.log"); errL.Filename != want {
		t.Fatalf("stderr filename = %q, want %q", errL.Filename, want)
	}
}

func TestWritersExplicitPathsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom-out.log"),
		MaxSizeMB:  25,
	}
	outW, errW, err := c.Writers("backend")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	out := outW.(*lj.Logger)
	if out.Filename != c.StdoutPath {
		t.Fatalf("stdout filename = %q", out.Filename)
	}
	if out.MaxSize != 25 {
		t.Fatalf("max size = %d, want 25", out.MaxSize)
	}
	// stderr still derives from Dir
	errL := errW.(*lj.Logger)
	if want := filepath.Join(dir, "backend.stderr.log"); errL.Filename != want {
		t.Fatalf("stderr filename = %q, want %q", errL.Filename, want)
	}
}

func TestWritersEmptyConfig(t *testing.T) {
	var c Config
	outW, errW, err := c.Writers("backend")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers with no destinations configured")
	}
}

func TestWritersActuallyWrite(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, _, err := c.Writers("live")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if _, err := outW.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := outW.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "live.stdout.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestNewSloggerHonorsLevel(t *testing.T) {
	c := Config{Level: "error"}
	l := c.NewSlogger()
	ctx := context.Background()
	if l.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should be disabled at error level")
	}
	if !l.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error should be enabled")
	}
}
