// Command luxgw-admin is the operator-facing CLI: it validates a gateway
// configuration file, lists registered plugins, prints build version info,
// and serves the admin API together with the embedded operator dashboard
// as a standalone process (useful when the admin surface is split onto its
// own port/network from the public gateway in cmd/luxgw).
package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	luxgateway "github.com/upskiller-xyz/lux-gateway"
	"github.com/upskiller-xyz/lux-gateway/internal/admin"
	"github.com/upskiller-xyz/lux-gateway/internal/config"
	"github.com/upskiller-xyz/lux-gateway/internal/requestlog"
	"github.com/upskiller-xyz/lux-gateway/internal/version"
	"github.com/upskiller-xyz/lux-gateway/plugin"
	"github.com/upskiller-xyz/lux-gateway/web"

	// Register built-in plugins so they appear in `plugins` output and can
	// be loaded by a config the `validate` command checks.
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/cache"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/denylist"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/logger"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/meshcap"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/ratelimit"
)

func main() {
	root := &cobra.Command{
		Use:   "luxgw-admin",
		Short: "lux-gateway operator command line tool",
	}
	root.AddCommand(newValidateCmd())
	root.AddCommand(newPluginsCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			fmt.Println("✓ Config is valid")
			fmt.Printf("  Deployment mode: %s\n", cfg.DeploymentMode)
			fmt.Printf("  Auth type:       %s\n", cfg.AuthType)
			if len(cfg.ServiceURLs) > 0 {
				var pairs []string
				for name, url := range cfg.ServiceURLs {
					pairs = append(pairs, fmt.Sprintf("%s=%s", name, url))
				}
				fmt.Printf("  Service URLs:    %s\n", strings.Join(pairs, ", "))
			}
			if len(cfg.Plugins) > 0 {
				var names []string
				for _, p := range cfg.Plugins {
					status := "disabled"
					if p.Enabled {
						status = "enabled"
					}
					names = append(names, fmt.Sprintf("%s (%s)", p.Name, status))
				}
				fmt.Printf("  Plugins:         %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List all registered plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := plugin.RegisteredPlugins()
			if len(names) == 0 {
				fmt.Println("No plugins registered.")
				return nil
			}
			fmt.Println("Registered plugins:")
			for _, name := range names {
				factory, ok := plugin.GetFactory(name)
				if !ok {
					continue
				}
				p := factory()
				fmt.Printf("  %-20s type=%s\n", name, p.Type())
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("luxgw-admin %s\n", version.String())
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	var registryDB string
	var keysDB string
	var requestLogDB string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and operator dashboard as a standalone process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, registryDB, keysDB, requestLogDB)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "address to listen on")
	cmd.Flags().StringVar(&registryDB, "registry-db", "", "SQLite DSN for persisted Service Registry overrides")
	cmd.Flags().StringVar(&keysDB, "keys-db", "", "SQLite DSN for persisted admin API keys")
	cmd.Flags().StringVar(&requestLogDB, "request-log-db", "", "SQLite DSN for the request log")
	return cmd
}

func runServe(addr, registryDB, keysDB, requestLogDB string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("invalid environment configuration: %w", err)
	}

	gw, err := luxgateway.New(cfg)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	keyStore, err := admin.NewSQLiteStore(keysDB)
	if err != nil {
		return fmt.Errorf("opening key store: %w", err)
	}

	logWriter, err := requestlog.NewSQLiteWriter(requestLogDB)
	if err != nil {
		return fmt.Errorf("opening request log store: %w", err)
	}

	registryStore, err := admin.NewSQLiteRegistryStore(registryDB)
	if err != nil {
		return fmt.Errorf("opening registry override store: %w", err)
	}
	registryManager, err := admin.NewRegistryManager(gw, registryStore)
	if err != nil {
		return fmt.Errorf("building registry manager: %w", err)
	}

	handlers := &admin.Handlers{
		Keys:     keyStore,
		Gateway:  gw,
		Registry: registryManager,
		Logs:     logWriter,
		LogAdmin: logWriter,
	}

	dashboardFS, err := fs.Sub(web.Assets, ".")
	if err != nil {
		return fmt.Errorf("loading embedded dashboard assets: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.AuthMiddleware(keyStore))
		r.Mount("/", handlers.Routes())
	})
	r.Handle("/*", http.FileServer(http.FS(dashboardFS)))

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down admin server gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("luxgw-admin %s serving admin API and dashboard on %s", version.Short(), addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("Admin server stopped.")
	return nil
}
