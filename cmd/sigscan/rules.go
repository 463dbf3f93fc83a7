package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	nats "github.com/nats-io/nats.go"

	"github.com/swarmguard/sigscan/internal/resilience"
	"github.com/swarmguard/sigscan/internal/rulebus"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Ruleset distribution commands",
}

var rulesPublishCmd = &cobra.Command{
	Use:   "publish <rules-file>",
	Short: "Notify the fleet that a ruleset changed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesPublish,
}

func init() {
	rulesCmd.AddCommand(rulesPublishCmd)
}

func runRulesPublish(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading rules file: %w", err)
	}
	sum := sha256.Sum256(data)

	nc, err := nats.Connect(viper.GetString("nats-url"))
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = resilience.Retry(ctx, 5, 200*time.Millisecond, func() (struct{}, error) {
		return struct{}{}, rulebus.PublishUpdate(ctx, nc, rulebus.UpdatedSubject, sum[:])
	})
	if err != nil {
		return fmt.Errorf("publishing ruleset update: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published ruleset update hash=%x\n", sum)
	return nil
}
