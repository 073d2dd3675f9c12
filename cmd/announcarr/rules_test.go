package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database_file: " + filepath.Join(dir, "announcarr.db") + "\nlog_level: error\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRulesCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	if _, err := execute(t, "--config", cfg, "provision"); err != nil {
		t.Fatalf("provision error = %v", err)
	}
	if _, err := execute(t, "--config", cfg, "rules", "add-filter", `.*\.German\..*`); err != nil {
		t.Fatalf("add-filter error = %v", err)
	}
	if _, err := execute(t, "--config", cfg, "rules", "add-adl", "tv", `Show\.Name`); err != nil {
		t.Fatalf("add-adl error = %v", err)
	}

	ruleFile := filepath.Join(t.TempDir(), "generic.txt")
	os.WriteFile(ruleFile, []byte("# movies\nSome\\.Movie\\..*\n\nOther\\.Movie\\..*\n"), 0o644)
	out, err := execute(t, "--config", cfg, "rules", "import", "generic", ruleFile)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if !strings.Contains(out, "Imported 2 rules") {
		t.Errorf("Unexpected import output %q", out)
	}

	out, err = execute(t, "--config", cfg, "rules", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	for _, want := range []string{"filter\t.*\\.German\\..*", "tv\tShow\\.Name", "generic\tSome\\.Movie\\..*", "generic\tOther\\.Movie\\..*"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in list output:\n%s", want, out)
		}
	}
}

func TestRulesRejectInvalidInput(t *testing.T) {
	cfg := writeTestConfig(t)

	if _, err := execute(t, "--config", cfg, "rules", "add-filter", "(broken"); err == nil {
		t.Error("Expected invalid pattern to be rejected")
	}
	if _, err := execute(t, "--config", cfg, "rules", "add-adl", "music", "Band"); err == nil {
		t.Error("Expected unknown entry type to be rejected")
	}
}
