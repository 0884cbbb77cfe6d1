// Command luxgw runs the orchestration gateway's public HTTP server: the
// /v1/<endpoint> pipeline entry points, a dependency-aware readiness probe,
// Prometheus metrics, and the mounted admin API.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	luxgateway "github.com/upskiller-xyz/lux-gateway"
	"github.com/upskiller-xyz/lux-gateway/internal/admin"
	"github.com/upskiller-xyz/lux-gateway/internal/config"
	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/logging"
	"github.com/upskiller-xyz/lux-gateway/internal/requestlog"
	"github.com/upskiller-xyz/lux-gateway/internal/shaper"
	"github.com/upskiller-xyz/lux-gateway/internal/validate"
	"github.com/upskiller-xyz/lux-gateway/internal/version"

	// Register built-in plugins so they can be loaded from config.
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/cache"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/denylist"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/logger"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/meshcap"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/ratelimit"
)

func main() {
	var cfg *config.Config
	var err error
	if cfgPath := os.Getenv("GATEWAY_CONFIG"); cfgPath != "" {
		cfg, err = config.LoadFile(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if err := config.Validate(cfg); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		log.Printf("Config loaded from %s: deployment_mode=%s", cfgPath, cfg.DeploymentMode)
	} else {
		cfg, err = config.FromEnv()
		if err != nil {
			log.Fatalf("Invalid environment configuration: %v", err)
		}
		log.Printf("Config loaded from environment: deployment_mode=%s", cfg.DeploymentMode)
	}

	gw, err := luxgateway.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	log.Printf("Gateway ready: %d plugin(s) loaded", len(cfg.Plugins))

	keyStore := admin.NewKeyStore()

	var logReader requestlog.Reader
	var logMaintainer requestlog.Maintainer
	if dsn := os.Getenv("REQUEST_LOG_DB"); dsn != "" {
		writer, err := requestlog.NewPostgresWriter(dsn)
		if err != nil {
			log.Fatalf("Failed to open request log store: %v", err)
		}
		logReader = writer
		logMaintainer = writer
		gw.AddHook(requestLoggingHook(writer))
	}

	registryStore, err := admin.NewSQLiteRegistryStore(os.Getenv("REGISTRY_OVERRIDES_DB"))
	if err != nil {
		log.Fatalf("Failed to open registry override store: %v", err)
	}
	registryManager, err := admin.NewRegistryManager(gw, registryStore)
	if err != nil {
		log.Fatalf("Failed to build registry manager: %v", err)
	}

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(gw, keyStore, registryManager, logReader, logMaintainer, corsOrigins)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("lux-gateway %s listening on %s (mode=%s)", version.Short(), addr, cfg.DeploymentMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// requestLoggingHook persists a summary of every completed or failed
// invocation to the request log store, independent of the request-logger
// plugin (which records per-service pipeline-stage detail, not this
// gateway-level end-to-end event).
func requestLoggingHook(writer requestlog.Writer) luxgateway.EventHookFunc {
	return func(ctx context.Context, subject string, data map[string]interface{}) {
		entry := requestlog.Entry{
			TraceID:   logging.TraceIDFromContext(ctx),
			Stage:     strings.TrimPrefix(subject, "gateway.invocation."),
			Endpoint:  stringField(data, "endpoint"),
			WindowCount: intField(data, "windows"),
			ErrorMessage: stringField(data, "error"),
			CreatedAt: time.Now(),
		}
		if err := writer.Write(ctx, entry); err != nil {
			logging.FromContext(ctx).Error("failed to persist request log entry", "error", err.Error())
		}
	}
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}

func intField(data map[string]interface{}, key string) int {
	v, _ := data[key].(int)
	return v
}

// newRouter builds the HTTP router: the /v1/<endpoint> pipeline entry
// points behind the inbound Authenticator, a dependency-aware readiness
// probe, /metrics, and the mounted admin API.
func newRouter(gw *luxgateway.Gateway, keyStore admin.Store, registryManager *admin.RegistryManager, logs requestlog.Reader, logAdmin requestlog.Maintainer, corsOrigins []string) http.Handler {
	cfg := gw.Config()
	mode := gwerrors.DeploymentMode(cfg.DeploymentMode)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)
	r.Use(middleware.Logger)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		results := gw.Ready(r.Context())
		allReachable := true
		for _, res := range results {
			if !res.Reachable {
				allReachable = false
				break
			}
		}
		status := http.StatusOK
		if !allReachable {
			status = http.StatusServiceUnavailable
		}
		writeReadiness(w, status, results)
	})

	r.Handle("/metrics", promhttp.Handler())

	adminHandlers := &admin.Handlers{
		Keys:     keyStore,
		Gateway:  gw,
		Registry: registryManager,
		Logs:     logs,
		LogAdmin: logAdmin,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.AuthMiddleware(keyStore))
		r.Mount("/", adminHandlers.Routes())
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(gw.Authenticator().Middleware(mode))
		r.Post("/{endpoint}", pipelineHandler(gw, mode))
	})

	return r
}

// pipelineHandler resolves the requested endpoint alias, validates the body,
// runs it through the Gateway, and shapes the response, per spec §4 and §6.
func pipelineHandler(gw *luxgateway.Gateway, mode gwerrors.DeploymentMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathSegment := chi.URLParam(r, "endpoint")
		endpoint, alias, ok := validate.ResolveEndpoint(pathSegment)
		if !ok {
			gwerrors.New(gwerrors.KindValidation, "unknown endpoint: "+pathSegment).WriteJSON(w, mode)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
		if err != nil {
			gwerrors.New(gwerrors.KindValidation, "failed to read request body").WriteJSON(w, mode)
			return
		}

		acc, err := validate.ParseAndValidate(endpoint, body)
		if err != nil {
			if gwErr, ok := gwerrors.As(err); ok {
				gwErr.WriteJSON(w, mode)
				return
			}
			gwerrors.Wrap(gwerrors.KindValidation, "", err).WriteJSON(w, mode)
			return
		}

		result, err := gw.Invoke(r.Context(), endpoint, acc)
		if err != nil {
			if gwErr, ok := gwerrors.As(err); ok {
				gwErr.WriteJSON(w, mode)
				return
			}
			gwerrors.Wrap(gwerrors.KindInternal, "", err).WriteJSON(w, mode)
			return
		}

		shaper.WriteResponse(w, endpoint, alias, result)
	}
}

// writeReadiness renders the Gateway's per-service reachability probe as
// the readiness response.
func writeReadiness(w http.ResponseWriter, status int, results []luxgateway.ReadinessResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	services := make(map[string]string, len(results))
	for _, r := range results {
		if r.Reachable {
			services[string(r.Service)] = "ready"
		} else {
			services[string(r.Service)] = "unreachable"
		}
	}
	overall := "success"
	if status != http.StatusOK {
		overall = "error"
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": overall, "services": services})
}

// corsMiddleware mirrors the access-control headers used throughout the
// pack's HTTP servers: an explicit allow-list when origins are configured,
// otherwise open access for local development.
func corsMiddleware(allowedOrigins ...string) func(http.Handler) http.Handler {
	allowAny := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, value := range allowedOrigins {
		origin := strings.TrimSpace(value)
		if origin == "" {
			continue
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowAny {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
