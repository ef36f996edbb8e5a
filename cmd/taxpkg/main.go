// Command taxpkg manages the taxonomy package registry from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy/internal/config"
	"github.com/git-pkgs/taxonomy/internal/logging"
	"github.com/git-pkgs/taxonomy/internal/metrics"
)

const usage = `usage: taxpkg [flags] <command> [args]

commands:
  list                     show registered packages in precedence order
  show <index>             show one package and its remapped prefixes
  add <source>...          register packages from paths, URLs or pkg: URLs
  remove <name> <version>  unregister a package
  enable <index>           include a package in resolution
  disable <index>          exclude a package from resolution
  up <index>               move a package to lower precedence
  down <index>             move a package to higher precedence
  reload <index>           re-read a package from its source
  scan                     check sources for newer versions
  remappings               print the resolved prefix table

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taxpkg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "registry file (.json, .toml, .yaml); overrides TAXPKG_CONFIG")
	cacheDir := fs.String("cache", "", "download cache directory; overrides TAXPKG_CACHE_DIR")
	logLevel := fs.String("log-level", "", "debug, info, warn or error; overrides TAXPKG_LOG_LEVEL")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	dryRun := fs.Bool("n", false, "do not save changes")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
		return 1
	}
	if *configPath != "" {
		if cfg.Store.Path, err = config.ExpandPath(*configPath); err != nil {
			_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
			return 1
		}
	}
	if *cacheDir != "" {
		if cfg.Fetch.CacheDir, err = config.ExpandPath(*cacheDir); err != nil {
			_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
			return 1
		}
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
		return 1
	}
	if err := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	if a.changed {
		logger.Info("resolved remappings changed", zap.Int("remappings", len(a.reg.Remappings())))
	}
	if *dryRun {
		return 0
	}
	if err := a.reg.Commit(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "taxpkg: %v\n", err)
		return 1
	}
	return 0
}
