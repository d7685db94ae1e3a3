package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"llmq/internal/bus"
	"llmq/internal/engine"
)

// preflightCheck is one named probe result.
type preflightCheck struct {
	Name string
	OK   bool
	Err  error
}

func newPreflightCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Probe the broker and model runtime without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreflight(opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (.yaml/.json/.toml)")
	cmd.Flags().StringVar(&opts.busURL, "bus-url", envDefault("LLMQ_BUS_URL", ""), "AMQP broker URL")
	cmd.Flags().StringVar(&opts.runtimeURL, "runtime-url", envDefault("LLMQ_RUNTIME_URL", ""), "Model runtime base URL")
	return cmd
}

func runPreflight(opts serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var checks []preflightCheck

	if cfg.RuntimeURL == "" {
		checks = append(checks, preflightCheck{Name: "runtime_configured", OK: false, Err: engine.ErrUnavailable("runtime_url not set")})
	} else {
		client := engine.NewClient(cfg.RuntimeURL, 10*time.Second, 5*time.Second)
		err := client.Health(ctx)
		checks = append(checks, preflightCheck{Name: "runtime_reachable", OK: err == nil, Err: err})
	}

	transport, err := bus.DialAMQP(cfg.BusURL, cfg.BusVHost)
	checks = append(checks, preflightCheck{Name: "broker_reachable", OK: err == nil, Err: err})
	if err == nil {
		transport.Close()
	}

	failed := 0
	for _, c := range checks {
		if c.OK {
			fmt.Printf("ok   %s\n", c.Name)
			continue
		}
		failed++
		fmt.Printf("FAIL %s: %v\n", c.Name, c.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d preflight check(s) failed", failed)
	}
	return nil
}
