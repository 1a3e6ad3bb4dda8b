// Package main implements the delta_notifier binary which periodically tells
// search targets to run their delta import.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cybertec-postgresql/delta_notifier/internal/config"
	"github.com/cybertec-postgresql/delta_notifier/internal/db"
	"github.com/cybertec-postgresql/delta_notifier/internal/etcd"
	"github.com/cybertec-postgresql/delta_notifier/internal/log"
	"github.com/cybertec-postgresql/delta_notifier/internal/metrics"
	"github.com/cybertec-postgresql/delta_notifier/internal/scheduler"
)

// Config holds the application configuration
type Config struct {
	Properties  string `short:"f" env:"DELTA_NOTIFIER_PROPERTIES" long:"properties" description:"Path of the global dataimport.properties file"`
	EtcdDSN     string `short:"e" env:"DELTA_NOTIFIER_ETCD_DSN" long:"etcd-dsn" description:"etcd connection string, used instead of --properties"`
	EtcdPrefix  string `env:"DELTA_NOTIFIER_ETCD_PREFIX" long:"etcd-prefix" description:"Key prefix of the configuration in etcd (default: path of the etcd DSN)"`
	MarkerDir   string `short:"m" env:"DELTA_NOTIFIER_MARKER_DIR" long:"marker-dir" description:"Base directory holding one directory per target" default:"."`
	Webapp      string `env:"DELTA_NOTIFIER_WEBAPP" long:"webapp" description:"Webapp name used when none is configured" default:"solr"`
	PostgresDSN string `short:"p" env:"DELTA_NOTIFIER_POSTGRES_DSN" long:"postgres-dsn" description:"PostgreSQL connection string of the audit store and the query command"`
	MetricsAddr string `env:"DELTA_NOTIFIER_METRICS_ADDR" long:"metrics-addr" description:"Listen address of the Prometheus endpoint, disabled when empty"`
	Watch       bool   `short:"w" env:"DELTA_NOTIFIER_WATCH" long:"watch" description:"Reload the configuration as soon as it changes"`
	LogLevel    string `short:"l" env:"DELTA_NOTIFIER_LOG_LEVEL" long:"log-level" description:"Log level: debug|info|warn|error" default:"info"`
	LogJSON     bool   `env:"DELTA_NOTIFIER_LOG_JSON" long:"log-json" description:"Write logs as JSON"`
	Version     bool   `short:"v" long:"version" description:"Show version information"`

	Query   QueryCommand   `command:"query" description:"Run one entity query against PostgreSQL and print its records"`
	History HistoryCommand `command:"history" description:"Show the latest notifications of the audit store"`

	// Command is the name of the active subcommand, empty to run the scheduler
	Command string `no-flag:"true"`
	Help    bool   `no-flag:"true"`
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ParseCLI parses command-line arguments and returns the configuration
func ParseCLI(args []string) (cmdOpts *Config, err error) {
	cmdOpts = new(Config)
	parser := flags.NewParser(cmdOpts, flags.HelpFlag)
	parser.SubcommandsOptional = true // without a command the scheduler runs
	nonParsedArgs, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			cmdOpts.Help = true
		}
		if !flags.WroteHelp(err) {
			parser.WriteHelp(os.Stdout)
		}
		return cmdOpts, err
	}
	if len(nonParsedArgs) > 0 { // we don't expect any non-parsed arguments
		return cmdOpts, fmt.Errorf("unknown argument(s): %v", nonParsedArgs)
	}
	if parser.Active != nil {
		cmdOpts.Command = parser.Active.Name
	}
	return
}

// Validate checks option combinations the parser cannot express
func (c *Config) Validate() error {
	if c.Version {
		return nil
	}
	switch c.Command {
	case "query", "history":
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s requires --postgres-dsn", c.Command)
		}
	case "":
		if c.Properties == "" && c.EtcdDSN == "" {
			return errors.New("either --properties or --etcd-dsn is required")
		}
	}
	return nil
}

// ShowVersion prints version information and exits
func ShowVersion() {
	fmt.Printf("delta_notifier version %s\n", version)
	if commit != "none" && commit != "" {
		fmt.Printf("commit: %s\n", commit)
	}
	if date != "unknown" && date != "" {
		fmt.Printf("built: %s\n", date)
	}
}

// SetupLogging configures the logging system with structured output
func SetupLogging(logLevel string, json bool) error {
	if err := log.Setup(logLevel, json); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"pid":     os.Getpid(),
	}).Debug("delta_notifier logging initialized")
	return nil
}

// SetupCloseHandler creates a 'listener' on a new goroutine which will notify the
// program if it receives an interrupt from the OS. We then handle this by calling
// our clean up procedure and exiting the program.
func SetupCloseHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logrus.Debug("SetupCloseHandler received an interrupt from OS. Closing session...")
		cancel()
	}()
}

// configSource picks etcd when a DSN is given, the properties file otherwise
func configSource(ctx context.Context, cfg *Config) (config.Source, *etcd.Client, string, error) {
	if cfg.EtcdDSN == "" {
		return config.PropertiesFile{Path: cfg.Properties}, nil, "", nil
	}
	client, err := etcd.NewClientWithRetry(ctx, cfg.EtcdDSN)
	if err != nil {
		return nil, nil, "", err
	}
	prefix := cfg.EtcdPrefix
	if prefix == "" {
		prefix = etcd.Prefix(cfg.EtcdDSN)
	}
	return config.EtcdSource{Client: client, Prefix: prefix}, client, prefix, nil
}

// runScheduler wires the configuration, the optional audit store and the
// scheduler, then runs until ctx is done
func runScheduler(ctx context.Context, cfg *Config) error {
	source, etcdClient, prefix, err := configSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to etcd: %w", err)
	}
	if etcdClient != nil {
		defer etcdClient.Close()
	}
	store := config.NewStore(source, cfg.Webapp)

	opts := scheduler.Options{MarkerDir: cfg.MarkerDir}
	if cfg.PostgresDSN != "" {
		pool, err := db.NewWithRetry(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			return err
		}
		opts.Recorder = db.Recorder{Pool: pool}
	}

	sched, err := scheduler.New(ctx, store, opts)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	if cfg.MetricsAddr != "" {
		metrics.SetServiceInfo(version, commit)
		server := metrics.NewServer(cfg.MetricsAddr)
		g.Go(func() error { return server.Run(ctx) })
	}
	if cfg.Watch {
		switch {
		case etcdClient != nil:
			g.Go(func() error { return config.WatchEtcd(ctx, store, etcdClient, prefix) })
		default:
			watcher, err := config.NewWatcher(store, cfg.Properties, 500*time.Millisecond)
			if err != nil {
				return err
			}
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	// Quick check for version flags before full parsing
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			ShowVersion()
			os.Exit(0)
		}
	}

	cfg, err := ParseCLI(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if err := SetupLogging(cfg.LogLevel, cfg.LogJSON); err != nil {
		logrus.WithError(err).Fatal("Failed to setup logging")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetupCloseHandler(cancel)

	switch cfg.Command {
	case "query":
		err = runQuery(ctx, cfg, os.Stdout)
	case "history":
		err = runHistory(ctx, cfg, os.Stdout)
	default:
		err = runScheduler(ctx, cfg)
	}

	var cfgErr *config.Error
	switch {
	case errors.As(err, &cfgErr):
		logrus.WithError(err).Fatal("Invalid configuration")
	case err != nil && ctx.Err() == nil:
		logrus.WithError(err).Fatal("delta_notifier failed")
	}
	logrus.Info("Graceful shutdown completed")
}
