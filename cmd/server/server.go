package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rosterhub/rostersync/internal/auth"
	rosterHandler "github.com/rosterhub/rostersync/internal/controller/http/roster"
	"github.com/rosterhub/rostersync/internal/ingest"
	"github.com/rosterhub/rostersync/internal/query"
	"github.com/rosterhub/rostersync/internal/repositories/rosterstore/badgerkv"
	storeSqlite "github.com/rosterhub/rostersync/internal/repositories/rosterstore/sqlite"
	secretsEnvjson "github.com/rosterhub/rostersync/internal/repositories/secrets/envjson"
	"github.com/rosterhub/rostersync/pkg/common/jwkscache"
	"github.com/rosterhub/rostersync/pkg/common/keys"
	"github.com/rosterhub/rostersync/pkg/common/logger"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string) int {
	n, _ := strconv.Atoi(os.Getenv(name))
	return n
}

// withCORS applies the configured CORS policy. Preflight requests get a 200
// with an empty body.
func withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func openStore() (rosterstore.Repository, error) {
	switch backend := envOr("ROSTER_STORE_BACKEND", "badger"); backend {
	case "badger":
		return badgerkv.NewRepo(badgerkv.Config{Path: envOr("BADGER_PATH", "./roster-data")})
	case "sqlite":
		return storeSqlite.NewRepo(envOr("ROSTER_SQLITE_PATH", "./roster.db"))
	default:
		return nil, errors.New("unknown ROSTER_STORE_BACKEND: " + backend)
	}
}

func main() {
	logger.Initialize(envOr("LOG_LEVEL", "info"))
	defer logger.Sync()
	logger.Info("starting roster service")

	devMode := os.Getenv("AUTH_DEV_MODE") == "true"
	if devMode {
		// Initialize the dev key early so the JWKS endpoint is ready before
		// the first request.
		if err := keys.Init(); err != nil {
			logger.Error("init dev keys: %v", err)
			os.Exit(1)
		}
	}

	store, err := openStore()
	if err != nil {
		logger.Error("init store: %v", err)
		os.Exit(1)
	}

	secretsProvider := secretsEnvjson.New(os.Getenv("SECRETS_DIR"))

	verifier := &auth.Verifier{
		JWKSURL:  os.Getenv("AUTH_JWKS_URL"),
		Issuer:   os.Getenv("AUTH_ISSUER"),
		Audience: os.Getenv("AUTH_AUDIENCE"),
		Cache:    jwkscache.Default(),
		DevMode:  devMode,
	}

	queries := &query.Engine{
		Store:              store,
		IncludeMemberNames: envOr("INCLUDE_MEMBER_NAMES", "true") == "true",
	}

	syncer := &ingest.Engine{
		Store:       store,
		Secrets:     secretsProvider,
		AppNameOrID: os.Getenv("ONEROSTER_APP_NAME"),
		PageSize:    envInt("SYNC_PAGE_SIZE"),
	}

	h := rosterHandler.NewHandler(store, queries, syncer, verifier, secretsProvider)
	router := chi.NewRouter()
	router.Use(middleware.RequestSize(2_100_000))
	router.Use(middleware.Recoverer)
	router.Mount("/", h.Router())

	addr := ":" + envOr("PORT", "8080")
	server := &http.Server{Addr: addr, Handler: withCORS(envOr("CORS_ORIGIN", "*"), router)}

	go func() {
		logger.Info("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown: %v", err)
	}
	store.Disconnect()
	logger.Info("server stopped")
}
