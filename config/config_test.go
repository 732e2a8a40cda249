package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fileserver.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Root != string(filepath.Separator) {
		t.Errorf("Root = %q, want %q", cfg.Root, string(filepath.Separator))
	}
	if cfg.MetaRoot != ".meta" {
		t.Errorf("MetaRoot = %q, want %q", cfg.MetaRoot, ".meta")
	}
	if cfg.Theme != filepath.Join("css", "theme.css") {
		t.Errorf("Theme = %q, want %q", cfg.Theme, filepath.Join("css", "theme.css"))
	}
	if cfg.Port != 80 {
		t.Errorf("Port = %d, want 80", cfg.Port)
	}
	if cfg.Listen != ":80" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":80")
	}
	if cfg.ShowHidden {
		t.Error("ShowHidden should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", cfg.ReadTimeout)
	}
	if cfg.MaxWorkers <= 0 {
		t.Error("MaxWorkers should be positive")
	}
	if cfg.MaxCachedDirectories != 0 {
		t.Errorf("MaxCachedDirectories = %d, want 0", cfg.MaxCachedDirectories)
	}
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, strings.Join([]string{
		"# served tree",
		"",
		"ROOT=" + root,
		"Meta-Root = site-meta",
		"theme=dark.css",
		"port=8081",
		"show-hidden=true",
		"read-timeout=2s",
		"max-cached-directories=16",
		"unknown-key=whatever",
	}, "\n"))

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Root != root {
		t.Errorf("Root = %q, want %q", cfg.Root, root)
	}
	if cfg.MetaRoot != "site-meta" {
		t.Errorf("MetaRoot = %q, want %q", cfg.MetaRoot, "site-meta")
	}
	if cfg.MetaDir() != filepath.Join(root, "site-meta") {
		t.Errorf("MetaDir() = %q, want %q", cfg.MetaDir(), filepath.Join(root, "site-meta"))
	}
	if cfg.Theme != "dark.css" {
		t.Errorf("Theme = %q, want %q", cfg.Theme, "dark.css")
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if cfg.Listen != ":8081" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8081")
	}
	if !cfg.ShowHidden {
		t.Error("ShowHidden should be true")
	}
	if cfg.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", cfg.ReadTimeout)
	}
	if cfg.MaxCachedDirectories != 16 {
		t.Errorf("MaxCachedDirectories = %d, want 16", cfg.MaxCachedDirectories)
	}
	want := filepath.Join(root, "site-meta", "templates", "default.template.html")
	if cfg.SkeletonPath() != want {
		t.Errorf("SkeletonPath() = %q, want %q", cfg.SkeletonPath(), want)
	}
}

func TestLoadOverridesWin(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, "root=/nowhere\nport=9000\n")

	t.Setenv("FILESERVER_SHOW_HIDDEN", "true")

	cfg, err := Load(path, map[string]any{"root": root, "port": "9100"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Root != root {
		t.Errorf("Root = %q, want %q", cfg.Root, root)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if !cfg.ShowHidden {
		t.Error("ShowHidden should come from FILESERVER_SHOW_HIDDEN")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{name: "port out of range", content: "port=70000\n", target: ErrInvalidPort},
		{name: "port not numeric", content: "port=http\n", target: ErrInvalidPort},
		{name: "meta escapes root", content: "meta-root=../outside\n", target: ErrEscapesParent},
		{name: "theme escapes meta", content: "theme=../../../x.css\n", target: ErrEscapesParent},
		{name: "missing value", content: "root\n"},
		{name: "bad log level", content: "log-level=loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "root=" + t.TempDir() + "\n" + tt.content
			_, err := Load(writeConfig(t, content), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load("", map[string]any{"root": root, "port": 8080, "show-hidden": true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	again, err := Load(writeConfig(t, cfg.String()), nil)
	if err != nil {
		t.Fatalf("Load(String()) error = %v", err)
	}
	if *again != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", again, cfg)
	}
}
