package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	transactions "github.com/geodata/featuretxn"
	"github.com/geodata/featuretxn/api"
	"github.com/geodata/featuretxn/boltstore"
	"github.com/geodata/featuretxn/internal/config"
	"github.com/geodata/featuretxn/internal/logger"
)

// options are the command line flags. Set flags override the config file.
type options struct {
	ConfigFile string `short:"C" long:"config" description:"Path to the TOML config file"`
	Listen     string `long:"listen" description:"HTTP address to listen on"`
	StorePath  string `long:"store-path" description:"Path of the transaction database"`
	Backend    string `long:"backend" description:"Record store backend (memory or couchbase)"`
	LogLevel   string `long:"log-level" description:"Log level (debug, info, warn, error)"`
}

func parseOptions(args []string) (*config.Config, error) {
	opts := &options{}
	parser := flags.NewParser(opts, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	if opts.Listen != "" {
		cfg.Addr = opts.Listen
	}
	if opts.StorePath != "" {
		cfg.StorePath = opts.StorePath
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	return cfg, cfg.Validate()
}

type daemon struct {
	cfg     *config.Config
	lg      *zap.Logger
	txns    *transactions.Transactions
	backend *recordBackend
	server  *http.Server
}

func newDaemon(cfg *config.Config, lg *zap.Logger) (*daemon, error) {
	backend, err := newRecordBackend(cfg, lg)
	if err != nil {
		return nil, err
	}

	txnStore, err := boltstore.Open(boltstore.Config{
		Path:   cfg.StorePath,
		Logger: lg,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	txns, err := transactions.Init(&transactions.Config{
		RecordStoreProvider: backend.provider,
		Store:               txnStore,
		OperationTimeout:    cfg.OperationTimeout.Duration,
		ExpiryTime:          cfg.TransactionExpiry.Duration,
		CleanupQueueSize:    cfg.CleanupQueueSize,
		CleanupLostAttempts: cfg.TransactionExpiry.Duration > 0,
		Logger:              lg.Named("engine"),
	})
	if err != nil {
		_ = txnStore.Close()
		backend.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.NewHandler(api.Config{
		Transactions:   txns,
		Features:       backend.features,
		Logger:         lg.Named("api"),
		WriteRateLimit: cfg.WriteRateLimit,
		WriteBurst:     cfg.WriteBurst,
	}))

	return &daemon{
		cfg:     cfg,
		lg:      lg,
		txns:    txns,
		backend: backend,
		server: &http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
		},
	}, nil
}

func (d *daemon) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		d.lg.Info("listening", zap.String("addr", d.cfg.Addr))
		errCh <- d.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.lg.Error("failed to shut down http server", zap.Error(err))
	}

	return nil
}

func (d *daemon) close() {
	if err := d.txns.Close(); err != nil {
		d.lg.Error("failed to close transaction store", zap.Error(err))
	}
	d.backend.Close()
}

func main() {
	cfg, err := parseOptions(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error parsing command-line arguments: %s\n", err)
		os.Exit(2)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %s\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	for _, msg := range cfg.WarningMsgs {
		lg.Warn(msg)
	}
	lg.Info("starting", zap.Stringer("config", cfg))

	d, err := newDaemon(cfg, lg)
	if err != nil {
		lg.Fatal("failed to start", zap.Error(err))
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.run(ctx); err != nil {
		lg.Error("exiting", zap.Error(err))
	}
}
