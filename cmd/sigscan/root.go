// Command sigscan drives the four multi-pattern matcher engines from the
// command line: one-shot scans, cross-engine benchmarking, a daemon
// mode, and ruleset fleet-publish.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sigscan",
	Short: "Multi-pattern signature scanner",
	Long:  "sigscan runs Aho-Corasick, Wu-Manber, Set-Horspool, and Boyer-Moore matching against a capture buffer.",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.sigscan.yaml)")
	rootCmd.PersistentFlags().String("addr", ":8080", "daemon listen address")
	rootCmd.PersistentFlags().String("nats-url", "nats://127.0.0.1:4222", "NATS server URL for fleet rule distribution")
	_ = viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("nats-url", rootCmd.PersistentFlags().Lookup("nats-url"))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rulesCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".sigscan")
		}
	}
	viper.SetEnvPrefix("sigscan")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
