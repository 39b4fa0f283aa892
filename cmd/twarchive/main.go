package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"twarchive/internal/config"
	"twarchive/internal/logging"
	"twarchive/internal/metrics"
	"twarchive/internal/reqcache"
	"twarchive/internal/store/statedb"
	"twarchive/internal/xclient"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "twarchive",
	Short: "Compile a Twitter account's timeline from every source it can reach",
	Long: `twarchive merges a previous export, adaptive search, the official
archive and public search into one timeline file. Every response is cached
on disk, so a second run with the same configuration makes no network calls.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./twarchive.yaml", "config path")
	rootCmd.AddCommand(initCmd, compileCmd, followersCmd, followingCmd, listsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// env is what every network command shares.
type env struct {
	cfg     config.Config
	req     xclient.Requester
	fetcher *xclient.Fetcher
	db      *statedb.DB
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

// setup loads configuration, applies mutate and checks it with validate
// before anything touches the network, then opens the cache and state
// database.
func setup(mutate func(*config.Config), validate func(config.Config) error) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	log := logging.New(os.Stderr, cfg.LogLevel())
	logging.SetDefault(log)
	metrics.StartServer(cfg.Metrics.Addr)

	cache, err := reqcache.Open(cfg.Storage.CacheDir)
	if err != nil {
		return nil, err
	}
	db, err := statedb.Open(cfg.Storage.StateDB)
	if err != nil {
		return nil, err
	}
	req := xclient.NewHTTPRequester(cfg.API.Timeout)
	f := xclient.NewFetcher(req, cache, cfg.FetchCredentials(), cfg.FetchOptions(),
		xclient.WithLogger(log),
		xclient.WithLedger(db),
	)
	return &env{cfg: cfg, req: req, fetcher: f, db: db}, nil
}
