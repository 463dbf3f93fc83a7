package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swarmguard/sigscan/internal/capture"
	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/ruleparser"
)

var scanShowMatches bool

var scanCmd = &cobra.Command{
	Use:   "scan <algorithm> <rules-file> <capture-file>",
	Short: "Run one algorithm against one capture buffer",
	Args:  cobra.ExactArgs(3),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanShowMatches, "matches", true, "print each match as it is found")
}

func runScan(cmd *cobra.Command, args []string) error {
	algo, rulesPath, capturePath := args[0], args[1], args[2]

	eng, name, err := resolveEngine(algo)
	if err != nil {
		return err
	}

	set, err := ruleparser.FileLoader{Path: rulesPath}.Load()
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	data, err := capture.Read(capturePath)
	if err != nil {
		return fmt.Errorf("reading capture: %w", err)
	}

	tables, err := eng.Preprocess(set)
	if err != nil {
		return fmt.Errorf("preprocessing %s: %w", name, err)
	}

	out := cmd.OutOrStdout()
	st := eng.Scan(tables, data, func(m engine.Match) bool {
		if scanShowMatches {
			fmt.Fprintf(out, "[MATCH] pid %d at %d\n", m.PatternID, m.Start)
		}
		return true
	})

	fmt.Fprintf(out, "--- %s ---\n", name)
	fmt.Fprintf(out, "input_length=%d matches=%d elapsed_sec=%f\n", st.InputLength, st.Matches, st.ElapsedSec)
	return nil
}
