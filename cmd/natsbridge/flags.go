package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds the global command-line configuration
type CLIConfig struct {
	ConfigPaths []string
	LogLevel    string
	LogFormat   string
	Metrics     bool
	ShowVersion bool
	Validate    bool

	Command string
	Args    []string
}

// RequestFlags holds the flags of the request command
type RequestFlags struct {
	Subject string
	Data    string
	Retries int
	Timeout time.Duration
	Headers headerFlag
}

// PublishFlags holds the flags of the publish command
type PublishFlags struct {
	Subject string
	Data    string
	Count   int
	Rate    float64 // messages per second, 0 = unlimited
}

// ListenFlags holds the flags of the listen command
type ListenFlags struct {
	Subject string
	Queue   string
}

// layerFlag collects repeated -config values
type layerFlag []string

func (l *layerFlag) String() string { return strings.Join(*l, ",") }

func (l *layerFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// headerFlag collects repeated -header key=value values
type headerFlag map[string][]string

func (h headerFlag) String() string {
	parts := make([]string, 0, len(h))
	for k, vs := range h {
		for _, v := range vs {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

func (h headerFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("header must be key=value, got %q", v)
	}
	h[strings.TrimSpace(key)] = append(h[strings.TrimSpace(key)], value)
	return nil
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var layers layerFlag
	fs.Var(&layers, "config",
		"Configuration file, repeat to layer files (env: NATSBRIDGE_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (overrides config)")
	fs.BoolVar(&cfg.Metrics, "metrics",
		getEnvBool("NATSBRIDGE_METRICS_ENABLED", false),
		"Serve metrics and health over HTTP (env: NATSBRIDGE_METRICS_ENABLED)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ConfigPaths = layers
	if len(cfg.ConfigPaths) == 0 {
		if path := getEnv("NATSBRIDGE_CONFIG", ""); path != "" {
			cfg.ConfigPaths = []string{path}
		}
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = rest[0]
		cfg.Args = rest[1:]
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.Validate {
		return nil
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	switch cfg.Command {
	case "request", "publish", "listen":
		return nil
	case "":
		return fmt.Errorf("missing command: expected request, publish or listen")
	default:
		return fmt.Errorf("unknown command: %s", cfg.Command)
	}
}

func parseRequestFlags(args []string, stderr io.Writer) (*RequestFlags, error) {
	rf := &RequestFlags{Headers: headerFlag{}}
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&rf.Subject, "subject", "", "Subject to send the request to")
	fs.StringVar(&rf.Data, "data", "", "Request payload")
	fs.IntVar(&rf.Retries, "retries", -1, "Retries after a timed out attempt (default from config)")
	fs.DurationVar(&rf.Timeout, "timeout", 0, "Per-attempt timeout (default from config)")
	fs.Var(rf.Headers, "header", "Header as key=value, may be repeated")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rf.Subject == "" {
		return nil, fmt.Errorf("request: -subject is required")
	}
	return rf, nil
}

func parsePublishFlags(args []string, stderr io.Writer) (*PublishFlags, error) {
	pf := &PublishFlags{}
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&pf.Subject, "subject", "", "Subject to publish on")
	fs.StringVar(&pf.Data, "data", "", "Message payload")
	fs.IntVar(&pf.Count, "count", 1, "Number of messages to publish")
	fs.Float64Var(&pf.Rate, "rate", 0, "Messages per second, 0 for no limit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if pf.Subject == "" {
		return nil, fmt.Errorf("publish: -subject is required")
	}
	if pf.Count < 1 {
		return nil, fmt.Errorf("publish: -count must be at least 1, got %d", pf.Count)
	}
	if pf.Rate < 0 {
		return nil, fmt.Errorf("publish: -rate cannot be negative, got %v", pf.Rate)
	}
	return pf, nil
}

func parseListenFlags(args []string, stderr io.Writer) (*ListenFlags, error) {
	lf := &ListenFlags{}
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&lf.Subject, "subject", "", "Subject to listen on, wildcards allowed")
	fs.StringVar(&lf.Queue, "queue", "", "Queue group to join")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if lf.Subject == "" {
		return nil, fmt.Errorf("listen: -subject is required")
	}
	return lf, nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - NATS request/reply and pub/sub client

Usage: %s [options] <command> [command options]

Commands:
  request  -subject S [-data D] [-retries N] [-timeout T] [-header k=v]
  publish  -subject S [-data D] [-count N] [-rate R]
  listen   -subject S [-queue Q]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Ask a service, retrying once after a 2s timeout
  %s request -subject svc.time -data '{"tz":"UTC"}' -retries 1 -timeout 2s

  # Listen in a queue group with text logs
  %s -log-format=text listen -subject 'orders.>' -queue workers

  # Use environment variables
  export NATS_HOST=broker.internal NATS_USER=svc NATS_PASS=secret
  %s publish -subject events.ping

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
