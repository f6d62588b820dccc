package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/fgb-andu/muse-api/internal/sessiontoken"
	"github.com/fgb-andu/muse-api/pkg/api"
	"github.com/fgb-andu/muse-api/pkg/quota"
	"github.com/fgb-andu/muse-api/pkg/repository/contentstore"
	"github.com/fgb-andu/muse-api/pkg/repository/ledger"
	"github.com/fgb-andu/muse-api/pkg/repository/sqlitedb"
	"github.com/fgb-andu/muse-api/pkg/service/render"
	"github.com/fgb-andu/muse-api/pkg/service/translate"
)

const sessionTTL = 24 * time.Hour

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		logger.Error("SESSION_SECRET environment variable is required")
		os.Exit(1)
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY environment variable is required")
		os.Exit(1)
	}

	port := envOr("PORT", "5801")

	signer, err := sessiontoken.NewSigner(secret, sessionTTL)
	if err != nil {
		logger.Error("session signer", "error", err)
		os.Exit(1)
	}

	db, err := sqlitedb.Open(sqlitedb.Config{
		DatabasePath:   envOr("DATABASE_PATH", "./muse.db"),
		MigrationsPath: envOr("MIGRATIONS_PATH", "./migrations"),
	})
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}

	var closers []func() error
	closers = append(closers, db.Close)
	defer func() {
		var errs *multierror.Error
		for _, close := range closers {
			errs = multierror.Append(errs, close())
		}
		if err := errs.ErrorOrNil(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	var trials ledger.Trials
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb, err := ledger.NewRedisClient(addr)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		closers = append(closers, rdb.Close)
		trials = ledger.NewRedisTrials(rdb, sessionTTL)
		logger.Info("visitor trials backed by redis", "addr", addr)
	} else {
		trials = ledger.NewMemoryTrials()
	}

	accounts := ledger.NewSQLiteAccounts(db)
	engine := quota.NewEngine(accounts, trials, quota.DefaultRules())

	translator := translate.NewCached(translate.NewGPTTranslator(apiKey))

	handler := api.NewHandler(
		accounts,
		engine,
		contentstore.NewSQLiteStore(db),
		render.NewPlaceholder(),
		translator,
		signer,
		logger,
		api.Config{
			UploadDir:  envOr("UPLOAD_DIR", "./uploads"),
			WorksDir:   envOr("WORKS_DIR", "./works"),
			BaseURL:    envOr("PUBLIC_BASE_URL", "http://localhost:"+port),
			SessionTTL: sessionTTL,
		},
	)

	addr := fmt.Sprintf(":%s", port)
	logger.Info("server starting", "addr", addr)
	if err := http.ListenAndServe(addr, handler.Router()); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
