package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const chainTOML = `
[[sets]]
name = "points"
size = 3
  [[sets.fields]]
  name = "b"
  values = [1.0, 2.0, 3.0]
  [[sets.fields]]
  name = "c"

[[sets]]
name = "springs"
endpoints = ["points", "points"]
edges = [[0, 1], [1, 2]]
  [[sets.fields]]
  name = "a"
  values = [1.0, 2.0]
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReadColorMode(t *testing.T) {
	for in, want := range map[string]colorMode{"": colorAuto, "AUTO": colorAuto, " on ": colorOn, "off": colorOff} {
		got, err := readColorMode(in)
		if err != nil || got != want {
			t.Fatalf("readColorMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readColorMode("always"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, configFileName, `
[run]
program = "gemv-args"
graphs = ["chain.toml"]
jobs = 2

[cache]
dir = ".cache"
enabled = false

[trace]
level = "phase"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Run.Program != "gemv-args" || cfg.Run.Jobs != 2 || len(cfg.Run.Graphs) != 1 {
		t.Fatalf("run = %+v", cfg.Run)
	}
	if cfg.Cache.Enabled == nil || *cfg.Cache.Enabled {
		t.Fatalf("cache.enabled not decoded")
	}
	pc := &projectConfig{Path: path, Root: dir, Config: cfg}
	if got := pc.resolve("chain.toml"); got != filepath.Join(dir, "chain.toml") {
		t.Fatalf("resolve = %q", got)
	}

	bad := writeFile(t, t.TempDir(), configFileName, "[run]\nprogramme = \"gemv\"\n")
	if _, err := loadConfig(bad); err == nil || !strings.Contains(err.Error(), "run.programme") {
		t.Fatalf("unknown key: %v", err)
	}
	neg := writeFile(t, t.TempDir(), configFileName, "[run]\njobs = -1\n")
	if _, err := loadConfig(neg); err == nil {
		t.Fatalf("expected negative jobs to be rejected")
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeFile(t, root, configFileName, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, ok, err := findConfig(nested)
	if err != nil || !ok || got != want {
		t.Fatalf("findConfig = %q, %v, %v", got, ok, err)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chain.toml", chainTOML)
	cfg := writeFile(t, dir, configFileName, "[run]\ngraphs = [\"chain.toml\"]\n")
	metrics := filepath.Join(dir, "metrics.txt")

	out, err := execute(t, "run", "--config", cfg, "--no-cache", "--metrics-out", metrics, "--jobs", "2")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[3 13 10]") {
		t.Fatalf("output missing result:\n%s", out)
	}
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), `meshc_backend_runs_total{status="ok"} 1`) {
		t.Fatalf("metrics:\n%s", data)
	}
}

func TestRunCommandReportsMissingSet(t *testing.T) {
	dir := t.TempDir()
	graph := writeFile(t, dir, "points.toml", "[[sets]]\nname = \"points\"\nsize = 1\n")
	cfg := writeFile(t, dir, configFileName, "")

	out, err := execute(t, "run", "--config", cfg, "--no-cache", "--metrics-out", "", graph)
	if err == nil {
		t.Fatalf("expected failure, got:\n%s", out)
	}
	if !strings.Contains(out, "error") {
		t.Fatalf("status column missing error:\n%s", out)
	}
}

func TestIndexCommand(t *testing.T) {
	dir := t.TempDir()
	graph := writeFile(t, dir, "chain.toml", chainTOML)
	cfg := writeFile(t, dir, configFileName, "")

	out, err := execute(t, "index", "--config", cfg, "--no-cache=false", "--metrics-out", "", "--cache-dir", filepath.Join(dir, "cache"), "--via", "springs", graph)
	if err != nil {
		t.Fatalf("index: %v\n%s", err, out)
	}
	for _, want := range []string{"rowptr [0 2 5 7]", "colidx [0 1 0 1 2 1 2]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "cache", "pidx")); err != nil {
		t.Fatalf("cache not populated: %v", err)
	}
}

func TestOutputField(t *testing.T) {
	if _, err := outputField(nil, "points"); err == nil {
		t.Fatalf("expected malformed reference error")
	}
}

func TestVersionJSON(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), configFileName, "")
	out, err := execute(t, "version", "--config", cfg, "--format", "json", "--full")
	if err != nil {
		t.Fatalf("version: %v\n%s", err, out)
	}
	for _, want := range []string{`"tool": "meshc"`, `"gemv"`, `"git_commit": "unknown"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := execute(t, "version", "--config", cfg, "--format", "yaml", "--full=false"); err == nil {
		t.Fatalf("yaml format accepted")
	}
}
