package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	nats "github.com/nats-io/nats.go"

	"github.com/swarmguard/sigscan/internal/corelog"
	"github.com/swarmguard/sigscan/internal/daemon"
	"github.com/swarmguard/sigscan/internal/hotreload"
	"github.com/swarmguard/sigscan/internal/otelinit"
	"github.com/swarmguard/sigscan/internal/ruleparser"
	"github.com/swarmguard/sigscan/internal/rulebus"
)

var serveAlgorithm string
var serveRulesPath string
var serveReloadInterval time.Duration
var serveFleet bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAlgorithm, "algorithm", "a", "matcher algorithm (a, d, p, h, b)")
	serveCmd.Flags().StringVar(&serveRulesPath, "rules", "./rules.conf", "rule file path")
	serveCmd.Flags().DurationVar(&serveReloadInterval, "reload-interval", 5*time.Second, "poll interval for rule file changes")
	serveCmd.Flags().BoolVar(&serveFleet, "fleet", false, "subscribe to NATS ruleset-updated notifications")
}

func runServe(cmd *cobra.Command, args []string) error {
	const service = "sigscan"
	corelog.Init(service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer := otelinit.InitTracer(ctx, service)
	shutdownMetrics, promHandler, metrics := otelinit.InitMetrics(ctx, service)

	eng, name, err := resolveEngine(serveAlgorithm)
	if err != nil {
		return err
	}

	loader := ruleparser.FileLoader{Path: serveRulesPath}
	scanner, err := hotreload.New(eng, loader, serveReloadInterval)
	if err != nil {
		return fmt.Errorf("initial rule load: %w", err)
	}
	defer scanner.Stop()

	var nc *nats.Conn
	if serveFleet {
		nc, err = nats.Connect(viper.GetString("nats-url"))
		if err != nil {
			slog.Warn("nats connect failed, fleet notifications disabled", "error", err)
		} else {
			defer nc.Close()
			_, err := rulebus.SubscribeUpdates(nc, rulebus.UpdatedSubject, func(_ context.Context, _ *nats.Msg) {
				if err := scanner.ForceReload(); err != nil {
					slog.Error("fleet-triggered reload failed", "error", err)
				}
			})
			if err != nil {
				slog.Warn("nats subscribe failed", "error", err)
			}
		}
	}

	srv := daemon.New(viper.GetString("addr"), scanner, name, metrics, promHandler)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	slog.Info("sigscan daemon started", "algorithm", name, "addr", viper.GetString("addr"))
	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	otelinit.Flush(shutdownCtx, shutdownTracer)
	_ = shutdownMetrics(shutdownCtx)
	slog.Info("shutdown complete")
	return nil
}
