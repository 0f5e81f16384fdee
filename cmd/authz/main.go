package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/orderdesk/authz/internal/app"
	"github.com/orderdesk/authz/internal/audit"
	audithttp "github.com/orderdesk/authz/internal/audit/http"
	"github.com/orderdesk/authz/internal/auth"
	"github.com/orderdesk/authz/internal/gate"
	"github.com/orderdesk/authz/internal/observability"
	"github.com/orderdesk/authz/internal/permissions"
	permissionshttp "github.com/orderdesk/authz/internal/permissions/http"
	"github.com/orderdesk/authz/internal/platform/cache"
	"github.com/orderdesk/authz/internal/platform/db"
	"github.com/orderdesk/authz/internal/rbac"
	"github.com/orderdesk/authz/internal/shared"
	"github.com/orderdesk/authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("authz exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	var (
		repo  permissions.Repository
		ready func(*http.Request) error
	)
	switch cfg.StoreDriver {
	case app.StoreDriverMemory:
		logger.Warn("using in-memory permission store; state is lost on restart")
		repo = permissions.NewMemoryRepository(permissions.DevSeed())
	default:
		pool, err := db.New(ctx, cfg.PostgresOptions())
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = permissions.NewPGRepository(pool)
		ready = func(r *http.Request) error { return pool.Ping(r.Context()) }
	}

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	menuTable, err := rbac.LoadMenuTable(cfg.MenuRulesPath)
	if err != nil {
		return err
	}
	menus := rbac.NewMenuResolver(menuTable)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	workflow := permissions.NewService(repo, permissions.ServiceConfig{
		Policy:   permissions.ApprovalPolicy{ElevatedPrefixes: cfg.ElevatedResourcePrefixes},
		Notifier: jobs.NewApprovalNotifier(jobClient),
		Observer: metrics,
		Logger:   logger,
	})
	rbacMiddleware := rbac.Middleware{Loader: rbac.NewLoader(repo), Logger: logger}

	gateCfg := gate.DefaultConfig()
	gateCfg.LoginPath = cfg.LoginPath
	gateCfg.SafeDefaultPath = cfg.SafeDefaultPath
	policy, err := gate.NewPolicy(gateCfg)
	if err != nil {
		return err
	}
	logger.Info("gate allowlist loaded", slog.Int("routes", len(policy.Routes())))

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Gate: gate.Middleware{
			Policy:   policy,
			Verifier: auth.NewSessionVerifier(sessionManager),
			Cookies:  sessionManager,
			CSRF:     csrfManager,
			Audit:    repo,
			Observer: metrics,
			Logger:   logger.With(slog.String("component", "gate")),
		},
		RBACMiddleware:     rbacMiddleware,
		PermissionsHandler: permissionshttp.NewHandler(logger, workflow, menus, csrfManager, rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(repo)),
		Metrics:            metrics,
		Ready:              ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.MenuRulesWatch {
		g.Go(func() error {
			return rbac.WatchMenuRules(gctx, cfg.MenuRulesPath, menus, logger.With(slog.String("component", "menu-rules")), metrics.ObserveMenuReload)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
