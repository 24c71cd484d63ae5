package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/objcbridge/abi"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[runtime]
library = "/opt/objc/libobjc.so"
frameworks = ["/opt/objc/Foundation"]
arch = "arm32"
union-stret = true

[catalog]
path = "names.db"

[log]
verbosity = 3
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Runtime.Library != "/opt/objc/libobjc.so" {
		t.Errorf("runtime library = %q, want /opt/objc/libobjc.so", c.Runtime.Library)
	}
	if len(c.Runtime.Frameworks) != 1 || c.Runtime.Frameworks[0] != "/opt/objc/Foundation" {
		t.Errorf("runtime frameworks = %v, want [/opt/objc/Foundation]", c.Runtime.Frameworks)
	}
	if c.Runtime.Arch != "arm32" {
		t.Errorf("runtime arch = %q, want arm32", c.Runtime.Arch)
	}
	if !c.Runtime.UnionStret {
		t.Error("runtime union-stret = false, want true")
	}
	if c.Log.Verbosity != 3 {
		t.Errorf("log verbosity = %d, want 3", c.Log.Verbosity)
	}
	if got, want := c.CatalogPath(), filepath.Join(c.Dir, "names.db"); got != want {
		t.Errorf("CatalogPath() = %q, want %q", got, want)
	}

	a, err := c.Arch()
	if err != nil {
		t.Fatalf("Arch: %v", err)
	}
	if a.Name != abi.ARM32.Name || !a.UnionStructReturn {
		t.Errorf("Arch() = %+v, want arm32 with union struct return", a)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[log]
verbosity = 0
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Runtime.Library != DefaultLibrary {
		t.Errorf("default library = %q, want %q", c.Runtime.Library, DefaultLibrary)
	}
	if len(c.Runtime.Frameworks) != len(DefaultFrameworks) {
		t.Errorf("default frameworks = %v, want %v", c.Runtime.Frameworks, DefaultFrameworks)
	}
	if c.Runtime.Arch != "host" {
		t.Errorf("default arch = %q, want host", c.Runtime.Arch)
	}
	if c.Runtime.UnionStret {
		t.Error("default union-stret = true, want false")
	}
	if c.Log.Verbosity != 0 {
		t.Errorf("log verbosity = %d, want 0", c.Log.Verbosity)
	}
	if got, want := c.CatalogPath(), filepath.Join(c.Dir, ".objcbridge", "catalog.db"); got != want {
		t.Errorf("CatalogPath() = %q, want %q", got, want)
	}
	if a, err := c.Arch(); err != nil || a.Name != abi.Host().Name {
		t.Errorf("Arch() = %v, %v, want host", a.Name, err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown arch", "[runtime]\narch = \"sparc\"\n"},
		{"empty library", "[runtime]\nlibrary = \"\"\n"},
		{"empty framework", "[runtime]\nframeworks = [\"\"]\n"},
		{"verbosity out of range", "[log]\nverbosity = 9\n"},
		{"unknown key", "[runtime]\nlibary = \"x\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			if _, err := Load(dir); !errors.Is(err, ErrInvalid) {
				t.Errorf("Load error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadConfigSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[runtime\n")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[runtime]\narch = \"arm64\"\n")

	subdir := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(subdir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Runtime.Arch != "arm64" {
		t.Errorf("arch = %q, want arm64", c.Runtime.Arch)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil config, got %+v", c)
	}
}
