package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtm0/ccicube/internal/config"
	"github.com/rtm0/ccicube/internal/metrics"
	"github.com/rtm0/ccicube/internal/remote"
	"github.com/rtm0/ccicube/internal/store"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	cfgPath string
	flags   struct {
		store, endpoint, dataDir, logLevel string
	}

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type storeFactory struct {
	desc string
	open func(a *app) (store.DataStore, error)
}

var storeFactories = map[string]storeFactory{
	"esa-cci": {
		desc: "ESA Climate Change Initiative catalog served over HTTP (endpoint)",
		open: func(a *app) (store.DataStore, error) {
			return remote.NewClient(a.logger, a.cfg.Endpoint,
				remote.WithStoreID("esa-cci"),
				remote.WithConcurrency(a.cfg.Concurrency),
				remote.WithCache(store.NewCache(a.cfg.CacheSize)),
				remote.WithMetrics(a.metrics),
				remote.WithRetry(a.cfg.MaxRetries, a.cfg.RetryInterval),
				remote.WithTimeout(a.cfg.Timeout))
		},
	},
	"local": {
		desc: "NetCDF files in a directory (data_dir)",
		open: func(a *app) (store.DataStore, error) {
			return store.NewLocal(a.logger, a.cfg.DataDir, store.WithCache(store.NewCache(a.cfg.CacheSize)))
		},
	},
}

func storeNames() []string {
	names := make([]string, 0, len(storeFactories))
	for name := range storeFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// openStore connects to the configured data store.
func (a *app) openStore() (store.DataStore, error) {
	f, ok := storeFactories[a.cfg.Store]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", store.ErrUnknownStore, a.cfg.Store, storeNames())
	}
	st, err := f.open(a)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", a.cfg.Store, err)
	}
	a.logger.Debug("Connected to store", "store", st.ID())
	return st, nil
}

// setup loads the configuration, applies command-line overrides and builds
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context(), a.cfgPath)
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	if fs.Changed("store") {
		cfg.Store = a.flags.store
	}
	if fs.Changed("endpoint") {
		cfg.Endpoint = a.flags.endpoint
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = a.flags.dataDir
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.metrics = metrics.New()
	return nil
}

// pushMetrics sends the metrics of this run to the Pushgateway, if one is
// configured. Failures are logged only.
func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg == nil || a.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, "ccicube"); err != nil {
		a.logger.Warn("Could not push metrics", "url", a.cfg.PushgatewayURL, "err", err)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "ccicube",
		Short:        "Discover, describe, open and plot ESA CCI climate datasets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML configuration file (default $CCICUBE_CONFIG)")
	pf.StringVar(&a.flags.store, "store", "", "data store name, see the stores command")
	pf.StringVar(&a.flags.endpoint, "endpoint", "", "base URL of the remote catalog API")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "directory of the local store")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newStoresCmd(),
		newListCmd(a),
		newSearchCmd(a),
		newDescribeCmd(a),
		newSchemaCmd(a),
		newOpenCmd(a),
		newPlotCmd(a),
		newServeCmd(a),
		newWalkthroughCmd(a),
	)
	return root
}
