package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmq/internal/bus"
	"llmq/internal/config"
	"llmq/internal/dispatch"
	"llmq/internal/engine"
	"llmq/internal/llm"
	"llmq/internal/opsapi"
	"llmq/pkg/types"
)

// Defaults applied when neither config file nor flags specify a value.
const (
	defaultContextDepth = 3
	defaultMaxTokens    = 256
	defaultParallel     = 1
	defaultThreads      = 2
	defaultBusVHost     = "/llm"

	runtimeRequestTimeout = 5 * time.Minute
	runtimeConnectTimeout = 10 * time.Second
	warmupTimeout         = 10 * time.Minute
)

type serveOptions struct {
	configPath string
	addr       string
	busURL     string
	busKind    string
	model      string
	runtimeURL string
	corsOrigin string
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Warm the backend and serve the ask/score/discussion queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (.yaml/.json/.toml)")
	cmd.Flags().StringVar(&opts.addr, "addr", envDefault("LLMQ_ADDR", ""), "Ops HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&opts.busURL, "bus-url", envDefault("LLMQ_BUS_URL", ""), "AMQP broker URL")
	cmd.Flags().StringVar(&opts.busKind, "bus", "amqp", "Bus transport: amqp|memory")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model family: fastchat|llama")
	cmd.Flags().StringVar(&opts.runtimeURL, "runtime-url", envDefault("LLMQ_RUNTIME_URL", ""), "Model runtime base URL")
	cmd.Flags().StringVar(&opts.corsOrigin, "cors-origin", "", "Allowed CORS origin for the ops API (empty disables CORS)")
	return cmd
}

// loadConfig merges the optional config file with flag overrides and
// fills defaults.
func loadConfig(opts serveOptions) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.busURL != "" {
		cfg.BusURL = opts.busURL
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.runtimeURL != "" {
		cfg.RuntimeURL = opts.runtimeURL
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.BusVHost == "" {
		cfg.BusVHost = defaultBusVHost
	}
	if cfg.Model == "" {
		cfg.Model = "llama"
	}
	if cfg.ContextDepth <= 0 {
		cfg.ContextDepth = defaultContextDepth
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.NumParallelProcesses <= 0 {
		cfg.NumParallelProcesses = defaultParallel
	}
	if cfg.NumThreadsPerProcess <= 0 {
		cfg.NumThreadsPerProcess = defaultThreads
	}
	return cfg, nil
}

// newProvider picks the engine provider: a runtime client when configured,
// otherwise the fail-fast stub.
func newProvider(cfg config.Config) engine.Provider {
	if cfg.RuntimeURL == "" {
		return engine.NewStub()
	}
	return engine.NewClient(cfg.RuntimeURL, runtimeRequestTimeout, runtimeConnectTimeout)
}

func newBackend(cfg config.Config) (llm.Backend, error) {
	return llm.New(cfg.Model, llm.Params{
		ContextDepth:         cfg.ContextDepth,
		MaxTokens:            cfg.MaxTokens,
		NumParallelProcesses: cfg.NumParallelProcesses,
		NumThreadsPerProcess: cfg.NumThreadsPerProcess,
		Tokenizer:            cfg.TokenizerModel,
		Weights:              cfg.WeightsModel,
	}, newProvider(cfg))
}

func newLogger() zerolog.Logger {
	out := zerolog.New(os.Stderr)
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return out.With().Timestamp().Str("service", "llmqd").Logger()
}

// service implements opsapi.Service over the running dispatcher.
type service struct {
	dispatcher *dispatch.Dispatcher
	model      string
	ready      atomic.Bool
	started    time.Time
}

func (s *service) Ready() bool { return s.ready.Load() }

func (s *service) Status() types.StatusResponse {
	state := "warming"
	if s.ready.Load() {
		state = "ready"
	}
	now := time.Now()
	return types.StatusResponse{
		Model: s.model,
		State: state,
		Queues: []types.QueueStatus{
			{Queue: s.dispatcher.AskQueue(), Workers: s.dispatcher.AskWorkers()},
			{Queue: s.dispatcher.ScoreQueue(), Workers: 1},
			{Queue: s.dispatcher.DiscussionQueue(), Workers: 1},
		},
		UptimeSeconds:  int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

func runServe(opts serveOptions) error {
	log := newLogger()
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}

	var transport bus.Bus
	switch opts.busKind {
	case "memory":
		transport = bus.NewMemory()
	default:
		transport, err = bus.DialAMQP(cfg.BusURL, cfg.BusVHost)
		if err != nil {
			return err
		}
	}
	defer transport.Close()

	dispatcher := dispatch.New(backend, transport, cfg.NumParallelProcesses, log)
	svc := &service{dispatcher: dispatcher, model: backend.Name(), started: time.Now()}

	srv := &http.Server{Addr: cfg.Addr, Handler: opsapi.NewMux(svc, corsOptions(opts))}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server error")
		}
	}()

	// Eager warmup: trade startup latency for predictable first-request
	// latency. A load failure here is fatal; supervision restarts us.
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), warmupTimeout)
	err = backend.Warmup(warmCtx)
	cancelWarm()
	if err != nil {
		return err
	}
	svc.ready.Store(true)
	log.Info().Str("model", backend.Name()).Int("ask_workers", cfg.NumParallelProcesses).Msg("backend warm, serving")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := dispatcher.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	return runErr
}

func corsOptions(opts serveOptions) opsapi.CORSOptions {
	if opts.corsOrigin == "" {
		return opsapi.CORSOptions{}
	}
	return opsapi.CORSOptions{Enabled: true, AllowedOrigins: []string{opts.corsOrigin}}
}
