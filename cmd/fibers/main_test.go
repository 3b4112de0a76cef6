package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"fibers"}, args...))
	return out.String(), err
}

// TestConfigPrint tests config loading and printing
// Given: a TOML file naming the runtime
// When: config print runs with a worker override
// Then: the printed TOML carries both settings
func TestConfigPrint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.toml")
	if err := os.WriteFile(path, []byte("name = \"cli\"\nworkers = 2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	out, err := runApp(t, "--config", path, "--workers", "3", "config", "print")

	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !strings.Contains(out, "cli") || !strings.Contains(out, "workers = 3") {
		t.Errorf("output = %q, want name cli and 3 workers", out)
	}
}

func TestConfigPrint_BadFile(t *testing.T) {
	if _, err := runApp(t, "--config", filepath.Join(t.TempDir(), "none.toml"), "config", "print"); err == nil {
		t.Error("Run error = nil, want error")
	}
}

func TestBenchMutex(t *testing.T) {
	out, err := runApp(t, "--workers", "2", "bench", "mutex", "--tasks", "4", "--increments", "500")

	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !strings.Contains(out, "counter: 2000 (want 2000)") {
		t.Errorf("output = %q", out)
	}
}

func TestBenchSpawn(t *testing.T) {
	out, err := runApp(t, "--workers", "2", "bench", "spawn", "--tasks", "2500", "--batch", "1000")

	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !strings.Contains(out, "tasks: 2500") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "0 in use") {
		t.Errorf("output = %q, want no stacks in use", out)
	}
}

func TestBench_InvalidFlags(t *testing.T) {
	if _, err := runApp(t, "bench", "mutex", "--tasks", "0"); err == nil {
		t.Error("Run error = nil, want error")
	}
}
