package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunBenchReportsEveryAlgorithm(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeTempFile(t, dir, "rules.txt", `(msg:"needle"; content:"needle"; sid:1;)`+"\n")
	capturePath := writeTempFile(t, dir, "capture.bin", "find the needle here")

	var out bytes.Buffer
	benchCmd.SetOut(&out)
	benchCmd.SetArgs([]string{rulesPath, capturePath})
	if err := benchCmd.Execute(); err != nil {
		t.Fatalf("benchCmd.Execute: %v", err)
	}

	got := out.String()
	for _, a := range algorithms {
		if !strings.Contains(got, a.name) {
			t.Errorf("output missing a line for %q:\n%s", a.name, got)
		}
	}
}
