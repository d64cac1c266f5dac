package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(in, []byte("id,amount\n1,50\n2,5000\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
pipeline: smoke
steps:
  - name: pull
    type: extract
    params: {source: %q, target: raw}
  - name: publish
    type: load
    params: {source: raw, format: csv, target: %q}
`, in, out))

	if code := run([]string{"-config", cfgPath, "-logging-type", "text"}); code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "id,amount\n1,50\n2,5000\n" {
		t.Fatalf("output = %q", data)
	}
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
pipeline: smoke
steps:
  - name: pull
    type: extract
    params: {source: in.csv, target: raw}
`)
	if code := run([]string{"-config", cfgPath, "-dry-run", "-logging-type", "text"}); code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
}

func TestRun_BadPolicyOverride(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(in, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
pipeline: smoke
steps:
  - name: pull
    type: extract
    params: {source: %q, target: raw}
`, in))

	cases := []struct {
		name string
		args []string
	}{
		{"step failure", []string{"-on-step-failure", "abrot"}},
		{"validation failure", []string{"-on-validation-failure", "continu"}},
	}
	for _, tc := range cases {
		args := append([]string{"-config", cfgPath, "-logging-type", "text"}, tc.args...)
		if code := run(args); code != exitBadConfig {
			t.Fatalf("%s: exit code = %d, want %d", tc.name, code, exitBadConfig)
		}
	}
}

func TestRun_BadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
pipeline: broken
steps:
  - name: pull
    type: teleport
    params: {}
`)
	if code := run([]string{"-config", cfgPath, "-logging-type", "text"}); code != exitBadConfig {
		t.Fatalf("exit code = %d, want %d", code, exitBadConfig)
	}
}

func TestRun_HardFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
pipeline: failing
steps:
  - name: pull
    type: extract
    params: {source: %q, target: raw}
`, filepath.Join(dir, "absent.csv")))

	if code := run([]string{"-config", cfgPath, "-retries", "0", "-logging-type", "text"}); code != exitRunFailed {
		t.Fatalf("exit code = %d, want %d", code, exitRunFailed)
	}
}
