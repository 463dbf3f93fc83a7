package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swarmguard/sigscan/internal/capture"
	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/ruleparser"
)

var benchCmd = &cobra.Command{
	Use:   "bench <rules-file> <capture-file>",
	Short: "Run every algorithm against one capture buffer and compare stats",
	Args:  cobra.ExactArgs(2),
	RunE:  runBench,
}

func runBench(cmd *cobra.Command, args []string) error {
	rulesPath, capturePath := args[0], args[1]

	set, err := ruleparser.FileLoader{Path: rulesPath}.Load()
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	data, err := capture.Read(capturePath)
	if err != nil {
		return fmt.Errorf("reading capture: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, a := range algorithms {
		eng := a.new()
		tables, err := eng.Preprocess(set)
		if err != nil {
			fmt.Fprintf(out, "%s\tpreprocess error: %v\n", a.name, err)
			continue
		}
		matchCount := 0
		st := eng.Scan(tables, data, func(m engine.Match) bool {
			matchCount++
			return true
		})
		fmt.Fprintf(out, "%-16s matches=%-6d elapsed_sec=%f\n", a.name, matchCount, st.ElapsedSec)
	}
	return nil
}
