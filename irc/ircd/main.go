package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/presbrey/ircengine/irc"
	"github.com/presbrey/ircengine/irc/admind"
	"github.com/presbrey/ircengine/irc/bridge"
	"github.com/presbrey/ircengine/irc/config"
	"github.com/presbrey/ircengine/irc/directory"
	"github.com/presbrey/ircengine/irc/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app is every component the daemon runs.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *store.Store
	cache   *directory.Cached
	dir     *directory.Memory
	server  *irc.Server
	bridge  *bridge.Bridge
	admin   *admind.Server
	metrics *http.Server

	// reloads triggers reload; nil disables it
	reloads <-chan os.Signal
}

// buildCatalog returns the SQL store when one is configured and the static
// catalog otherwise, wrapped in the lookup cache.
func buildCatalog(cfg *config.Config) (*directory.Cached, *store.Store, error) {
	var st *store.Store
	if cfg.Store.Driver != "" {
		var err error
		st, err = store.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
	}

	cache := directory.NewCached(catalogFor(cfg, st),
		time.Duration(cfg.Cache.TrueTTL)*time.Second,
		time.Duration(cfg.Cache.FalseTTL)*time.Second)
	return cache, st, nil
}

func catalogFor(cfg *config.Config, st *store.Store) directory.Catalog {
	if st != nil {
		return st.WithServerPassword(cfg.Server.Password)
	}
	return directory.NewStatic(cfg)
}

// reload re-reads the config source and applies the parts that can change
// while running: reply texts, the server password and the static catalog.
// Listener addresses, the store and the bridge keep their settings.
func (a *app) reload() error {
	next := *a.cfg
	if err := next.Reload(""); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	a.cache.SetCatalog(catalogFor(&next, a.store))
	a.server.Reconfigure(&next)
	a.cfg = &next
	a.log.WithField("source", next.Source).Info("configuration reloaded")
	return nil
}

func newApp(cfg *config.Config, log *logrus.Logger) (*app, error) {
	cache, st, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: st, cache: cache}
	a.dir = directory.NewMemory(cache, log)
	a.server = irc.NewServer(cfg, a.dir)
	a.server.Logger = log

	if cfg.Bridge.Enabled {
		a.bridge = bridge.New(bridge.Config{
			Server:   cfg.Bridge.Server,
			Port:     cfg.Bridge.Port,
			Nick:     cfg.Bridge.Nick,
			User:     cfg.Bridge.User,
			Password: cfg.Bridge.Password,
			TLS:      cfg.Bridge.TLS,
			Channels: cfg.Bridge.Channels,
		}, a.dir, log)
		a.dir.SetRelay(a.bridge)
	}
	if cfg.Admin.Enabled {
		a.admin = admind.New(a.server, a.dir, st, cache)
	}
	if cfg.Metrics.Enabled {
		a.metrics = admind.NewMetricsServer(cfg.GetMetricsListenAddress(), cfg.Metrics.Path)
	}
	return a, nil
}

// run starts everything and blocks until ctx is done.
func (a *app) run(ctx context.Context) error {
	if err := a.server.Start(); err != nil {
		return err
	}

	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx); err != nil {
				a.log.WithError(err).Error("bridge stopped")
			}
		}()
	}
	if a.admin != nil {
		go func() {
			if err := a.admin.StartAdminServer(); err != nil {
				a.log.WithError(err).Error("admin API stopped")
			}
		}()
	}
	if a.metrics != nil {
		go func() {
			a.log.WithField("addr", a.metrics.Addr).Info("metrics server started")
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			return a.shutdown()
		case <-a.reloads:
			if err := a.reload(); err != nil {
				a.log.WithError(err).Error("reload failed, keeping current configuration")
			}
		}
	}
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.admin != nil {
		errs = append(errs, a.admin.Shutdown(ctx))
	}
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	errs = append(errs, a.server.Stop())
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func newRootCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:          "ircd",
		Short:        "IRC protocol engine daemon",
		Long:         `Serves IRC clients over TCP with an optional upstream bridge, admin API and Prometheus metrics. SIGHUP reloads the configuration.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}

			loaded, err := config.LoadEnvTree(config.DefaultEnvFile)
			if err != nil {
				return err
			}
			for _, path := range loaded {
				log.WithField("path", path).Debug("loaded env file")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			a.reloads = hup

			return a.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("IRCD_CONFIG"), "config file or URL (yaml, toml or json)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging and line tracing")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
