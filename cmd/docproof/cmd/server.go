package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/docproof/abci"
	"github.com/jmcleod/docproof/config"
	"github.com/jmcleod/docproof/drive"
	"github.com/jmcleod/docproof/proof"
	"github.com/jmcleod/docproof/query"
)

var (
	listenAddr string
	backend    string
	statePath  string
	logLevel   string
)

// sweepInterval is how often expired rate-limit records are dropped.
const sweepInterval = time.Minute

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = listenAddr
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend = backend
	}
	if flags.Changed("state") {
		cfg.Storage.Path = statePath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start an abci_query node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cfg.Logging.NewLogger(os.Stderr)
		proxies, err := cfg.TrustedProxyPrefixes()
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		repo := drive.New(store,
			drive.WithLogger(logger),
			drive.WithTranslator(&query.Translator{MaxLimit: cfg.Query.MaxLimit}),
		)
		node := abci.New(repo, store, proof.NewAggregator(store, logger),
			abci.WithLogger(logger),
			abci.WithTrustedProxies(proxies),
			abci.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Mount("/", node.Router())

		server := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}
		useTLS := cfg.Server.TLSCert != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					node.Sweep()
				}
			}
		}()

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.ErrOrStderr())
		logger.Info("query node started",
			"listen", cfg.Server.Listen,
			"tls", useTLS,
			"backend", cfg.Storage.Backend,
			"max_limit", cfg.Query.MaxLimit,
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":26657", "Address to listen on")
	serverCmd.Flags().StringVar(&backend, "backend", "bbolt", "State backend: memory or bbolt")
	serverCmd.Flags().StringVar(&statePath, "state", "./data/state.db", "Path of the bbolt state file")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}
