package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

func TestRunScanPrintsMatchLinesByDefault(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeTempFile(t, dir, "rules.txt", `alert tcp any any -> any any (msg:"needle"; content:"needle"; sid:1;)`+"\n")
	capturePath := writeTempFile(t, dir, "capture.bin", "find the needle here")

	scanShowMatches = true
	defer func() { scanShowMatches = true }()

	var out bytes.Buffer
	scanCmd.SetOut(&out)
	scanCmd.SetArgs([]string{"a", rulesPath, capturePath})
	if err := scanCmd.Execute(); err != nil {
		t.Fatalf("scanCmd.Execute: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "[MATCH] pid 0 at") {
		t.Errorf("output %q does not contain a [MATCH] line", got)
	}
	if !strings.Contains(got, "matches=1") {
		t.Errorf("output %q does not report matches=1", got)
	}
}

func TestRunScanSuppressesMatchesWhenFlagDisabled(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeTempFile(t, dir, "rules.txt", `alert tcp any any -> any any (msg:"needle"; content:"needle"; sid:1;)`+"\n")
	capturePath := writeTempFile(t, dir, "capture.bin", "find the needle here")

	var out bytes.Buffer
	scanCmd.SetOut(&out)
	scanCmd.SetArgs([]string{"a", rulesPath, capturePath, "--matches=false"})
	if err := scanCmd.Execute(); err != nil {
		t.Fatalf("scanCmd.Execute: %v", err)
	}
	scanShowMatches = true

	got := out.String()
	if strings.Contains(got, "[MATCH]") {
		t.Errorf("output %q should not contain a [MATCH] line when --matches=false", got)
	}
	if !strings.Contains(got, "matches=1") {
		t.Errorf("output %q should still report the summary line", got)
	}
}

func TestRunScanUnknownAlgorithmErrors(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeTempFile(t, dir, "rules.txt", `(content:"x"; sid:1;)`+"\n")
	capturePath := writeTempFile(t, dir, "capture.bin", "x")

	var out bytes.Buffer
	scanCmd.SetOut(&out)
	scanCmd.SetArgs([]string{"z", rulesPath, capturePath})
	if err := scanCmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown algorithm code")
	}
}
