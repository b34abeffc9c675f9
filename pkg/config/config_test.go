package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type server struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type settings struct {
	Server server   `yaml:"server"`
	Tags   []string `yaml:"tags"`
}

func (s *settings) Validate() error {
	if s.Server.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExpand(t *testing.T) {
	t.Setenv("CFG_SET", "on")
	t.Setenv("CFG_EMPTY", "")

	cases := map[string]string{
		"${CFG_SET}":           "on",
		"$CFG_SET":             "on",
		"${CFG_SET:-off}":      "on",
		"${CFG_EMPTY:-off}":    "off",
		"${CFG_UNSET_X:-8080}": "8080",
		"${CFG_UNSET_X}":       "",
		"a ${CFG_SET} b":       "a on b",
		"${CFG_UNSET_X:-a:-b}": "a:-b",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	t.Setenv("CFG_PORT", "")
	path := writeFile(t, "server:\n  port: ${CFG_PORT:-9000}\n")

	cfg := &settings{Server: server{Name: "recipes", Port: 1}, Tags: []string{"x"}}
	if err := Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Name != "recipes" || len(cfg.Tags) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "server:\n  prot: 80\n")
	err := Load(path, &settings{Server: server{Port: 1}})
	if err == nil || !strings.Contains(err.Error(), "prot") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadValidates(t *testing.T) {
	path := writeFile(t, "server:\n  port: 0\n")
	err := Load(path, &settings{})
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "")
	cfg := &settings{Server: server{Port: 7}}
	if err := Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &settings{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	found, err := LoadOptional(missing, &settings{Server: server{Port: 1}})
	if err != nil || found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	if _, err := LoadOptional(missing, &settings{}); err == nil {
		t.Fatal("defaults are validated even without a file")
	}

	path := writeFile(t, "server:\n  port: 3\n")
	cfg := &settings{}
	found, err = LoadOptional(path, cfg)
	if err != nil || !found || cfg.Server.Port != 3 {
		t.Fatalf("found = %v, err = %v, cfg = %+v", found, err, cfg)
	}
}
