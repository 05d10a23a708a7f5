// Package main implements the natsbridge command line client.
//
// natsbridge sends requests with timeout and retry, publishes messages and
// listens on subjects, using the natsclient and request packages.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/natsbridge/config"
	"github.com/c360/natsbridge/metric"
	"github.com/c360/natsbridge/natsclient"
	"github.com/c360/natsbridge/pkg/retry"
	"github.com/c360/natsbridge/pkg/tlsutil"
	"github.com/c360/natsbridge/request"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "natsbridge"
)

// closeGrace is added to the drain timeout when bounding shutdown.
const closeGrace = 5 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("natsbridge failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	client   *natsclient.Client
	out      io.Writer
	stderr   io.Writer
	outMu    sync.Mutex
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	if cli.Validate {
		_, _ = fmt.Fprintln(stdout, "configuration is valid")
		return nil
	}

	logger := setupLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	registry := metric.NewMetricsRegistry()
	client, err := newClient(cfg, logger, registry)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		client:   client,
		out:      stdout,
		stderr:   stderr,
	}
	return a.execute(ctx, cli)
}

// loadConfig loads the configured layers and applies CLI overrides on top.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cli.ConfigPaths {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	if cli.Metrics {
		cfg.Metrics.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newClient maps the configuration onto client options.
func newClient(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithDrainTimeout(cfg.NATS.DrainTimeout),
		natsclient.WithPerfLog(cfg.Request.PerfLog),
	}
	if len(cfg.Request.PerfLogExcludes) > 0 {
		opts = append(opts, natsclient.WithPerfLogExcludes(cfg.Request.PerfLogExcludes...))
	}
	if cfg.NATS.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.User, cfg.NATS.Pass))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.NATS.Name))
	}
	if cfg.NATS.TLS.Enabled {
		tlsConfig, err := tlsutil.ClientConfig(cfg.NATS.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}
	if cfg.NATS.WaitOnFirstConnect {
		opts = append(opts, natsclient.WithConnectRetry(retry.Persistent()))
	}

	return natsclient.NewClient(cfg.NATS.URL(), opts...)
}

// execute runs the command next to the optional metrics server. Both share
// one errgroup so a failing server stops the command and a finished command
// stops the server.
func (a *app) execute(ctx context.Context, cli *CLIConfig) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if a.cfg.Metrics.Enabled {
		server := metric.NewServer(a.cfg.Metrics.Addr, a.cfg.Metrics.Path, a.registry, a.client.Health)
		g.Go(func() error {
			a.logger.Info("metrics server listening", "addr", a.cfg.Metrics.Addr, "path", a.cfg.Metrics.Path)
			return server.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), closeGrace)
			defer stopCancel()
			return server.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return a.command(gctx, cli)
	})

	return g.Wait()
}

func (a *app) command(ctx context.Context, cli *CLIConfig) (err error) {
	if err := a.registerHandlers(); err != nil {
		return err
	}

	if err := a.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() {
		if closeErr := a.close(); err == nil {
			err = closeErr
		}
	}()

	switch cli.Command {
	case "request":
		rf, err := parseRequestFlags(cli.Args, a.stderr)
		if err != nil {
			return err
		}
		return a.request(ctx, rf)
	case "publish":
		pf, err := parsePublishFlags(cli.Args, a.stderr)
		if err != nil {
			return err
		}
		return a.publish(ctx, pf)
	case "listen":
		lf, err := parseListenFlags(cli.Args, a.stderr)
		if err != nil {
			return err
		}
		return a.listen(ctx, lf)
	default:
		return fmt.Errorf("unknown command: %s", cli.Command)
	}
}

// registerHandlers installs the lifecycle handlers every command uses.
// Connection errors are logged instead of reaching the unhandled error hook.
func (a *app) registerHandlers() error {
	return a.client.Dispatcher().RegisterHandler(natsclient.SignalError,
		natsclient.HandlerFunc(func(e natsclient.Event) error {
			a.logger.Error("nats: connection error", "url", e.URL, "server_id", e.ServerID, "error", e.Err)
			return nil
		}))
}

func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.NATS.DrainTimeout+closeGrace)
	defer cancel()
	if err := a.client.Close(ctx); err != nil {
		return fmt.Errorf("close NATS client: %w", err)
	}
	return nil
}

func (a *app) request(ctx context.Context, rf *RequestFlags) error {
	requester, err := request.New(a.client,
		request.WithLogger(a.logger),
		request.WithMetrics(a.registry),
		request.WithDefaults(a.cfg.Request.DefaultRetries, a.cfg.Request.DefaultTimeout),
	)
	if err != nil {
		return err
	}

	spec := request.Spec{
		Subject: rf.Subject,
		Message: []byte(rf.Data),
		Options: request.Options{Headers: rf.Headers},
		Timeout: rf.Timeout,
	}
	if rf.Retries >= 0 {
		spec.Retries = request.Retries(rf.Retries)
	}

	resp, err := requester.Do(ctx, spec)
	if err != nil {
		return err
	}
	a.print("%s\n", resp.Data)
	return nil
}

func (a *app) publish(ctx context.Context, pf *PublishFlags) error {
	sent, err := publishPaced(ctx, pf, a.client.Publish)
	if pf.Count > 1 {
		a.logger.Info("published", "subject", pf.Subject, "messages", sent, "of", pf.Count)
	}
	return err
}

// publishPaced publishes pf.Count copies of the payload, at most pf.Rate per
// second when a rate is set, and returns how many were sent.
func publishPaced(ctx context.Context, pf *PublishFlags, publish func(context.Context, string, []byte) error) (int, error) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pf.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(pf.Rate), 1)
	}

	data := []byte(pf.Data)
	for i := 0; i < pf.Count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return i, fmt.Errorf("publish %d of %d on %s: %w", i+1, pf.Count, pf.Subject, err)
		}
		if err := publish(ctx, pf.Subject, data); err != nil {
			return i, err
		}
	}
	return pf.Count, nil
}

// listen prints messages until ctx is done or the connection closes for
// good. On shutdown incoming messages are ignored before the client drains.
func (a *app) listen(ctx context.Context, lf *ListenFlags) error {
	closed := make(chan struct{})
	var once sync.Once
	err := a.client.Dispatcher().RegisterHandler(natsclient.SignalClose,
		natsclient.HandlerFunc(func(natsclient.Event) error {
			once.Do(func() { close(closed) })
			return nil
		}))
	if err != nil {
		return err
	}

	_, err = a.client.Subscribe(ctx, lf.Subject, natsclient.SubscribeOptions{Queue: lf.Queue},
		func(_ context.Context, msg *nats.Msg) {
			a.print("[%s] %s\n", msg.Subject, msg.Data)
		})
	if err != nil {
		return err
	}
	a.logger.Info("listening", "subject", lf.Subject, "queue", lf.Queue)

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
		a.client.IgnoreIncomingMessages()
		return nil
	case <-closed:
		return fmt.Errorf("listen on %s: connection closed", lf.Subject)
	}
}

func (a *app) print(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	_, _ = fmt.Fprintf(a.out, format, args...)
}
