package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmguard/sigscan/internal/capture"
	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/resilience"
	"github.com/swarmguard/sigscan/internal/ruleparser"
	"github.com/swarmguard/sigscan/internal/stats"
	"github.com/swarmguard/sigscan/internal/streaming"
)

var batchWorkers int

var batchCmd = &cobra.Command{
	Use:   "batch <algorithm> <rules-file> <capture-file>...",
	Short: "Scan many independent capture buffers concurrently",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 4, "concurrent worker goroutines")
}

// engineScanner adapts one preprocessed engine.Tables to
// streaming.Scanner so a single Preprocess result can be shared
// read-only across every worker goroutine in the pool.
type engineScanner struct {
	eng    engine.Engine
	tables engine.Tables
}

func (s *engineScanner) Scan(data []byte, fn engine.MatchFunc) stats.Stats {
	return s.eng.Scan(s.tables, data, fn)
}

func runBatch(cmd *cobra.Command, args []string) error {
	algo, rulesPath, capturePaths := args[0], args[1], args[2:]

	eng, name, err := resolveEngine(algo)
	if err != nil {
		return err
	}
	set, err := ruleparser.FileLoader{Path: rulesPath}.Load()
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	tables, err := eng.Preprocess(set)
	if err != nil {
		return fmt.Errorf("preprocessing %s: %w", name, err)
	}

	pool := streaming.NewWorkerPool(&engineScanner{eng: eng, tables: tables}, batchWorkers)
	pool.WithAdmissionControl(resilience.NewHybridRateLimiter(batchWorkers*2, float64(batchWorkers), len(capturePaths)+1, 10*time.Millisecond))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		for _, p := range capturePaths {
			data, err := capture.Read(p)
			if err != nil {
				continue
			}
			_ = pool.SubmitAdmitted(ctx, p, data)
		}
		pool.Close()
	}()

	out := cmd.OutOrStdout()
	for res := range pool.Results() {
		fmt.Fprintf(out, "%s\tmatches=%d elapsed_sec=%f\n", res.ID, len(res.Matches), res.Stats.ElapsedSec)
	}
	return nil
}
