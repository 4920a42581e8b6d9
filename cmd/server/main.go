package main

import (
	"context"
	"log"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/portal/api/handler"
	"github.com/fastygo/portal/internal/apiclient"
	"github.com/fastygo/portal/internal/config"
	"github.com/fastygo/portal/internal/identity"
	"github.com/fastygo/portal/internal/infrastructure/monitor"
	"github.com/fastygo/portal/internal/metrics"
	"github.com/fastygo/portal/internal/middleware"
	"github.com/fastygo/portal/internal/querycache"
	"github.com/fastygo/portal/internal/router"
	"github.com/fastygo/portal/internal/services"
	"github.com/fastygo/portal/internal/services/lifecycle"
	"github.com/fastygo/portal/internal/session"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/pkg/logger"
	authUC "github.com/fastygo/portal/usecase/auth"
	"github.com/fastygo/portal/usecase/userapi"
	"github.com/fastygo/portal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	var appMetrics *metrics.Metrics
	if cfg.HTTP.EnableMetrics {
		appMetrics = metrics.New("portal")
	}

	storage, driver := openStorage(appCtx, cfg, manager, zapLogger)

	sessions := session.NewManager(storage, session.ManagerConfig{
		Persist: session.PersistConfig{
			Key:       cfg.Session.PersistKey,
			Whitelist: cfg.Session.PersistFields,
		},
		RehydrateTimeout: cfg.Session.RehydrateTimeout,
	}, zapLogger, appMetrics)

	backend := apiclient.New(cfg.API,
		apiclient.WithLogger(zapLogger),
		apiclient.WithMetrics(appMetrics),
	)
	users, err := userapi.New(backend, querycache.Options{
		Size:         cfg.Cache.Size,
		MaxAge:       cfg.Cache.MaxAge,
		FetchTimeout: cfg.API.Timeout,
		Logger:       zapLogger,
		Metrics:      appMetrics,
	})
	if err != nil {
		zapLogger.Fatal("query cache setup failed", zap.Error(err))
	}

	mon := monitor.New(storage, driver, backend, sessions, 0, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	janitor := services.NewJanitor(sessions, storage, mon, zapLogger, services.JanitorConfig{
		Interval:  cfg.Session.SweepInterval,
		IdleAfter: cfg.Session.IdleTimeout,
		Retention: cfg.Session.Retention,
	})
	janitor.Start()
	manager.Register("janitor", func(ctx context.Context) error {
		janitor.Stop(ctx)
		return nil
	})

	inspector := identity.NewInspector(cfg.Identity.ProjectID, cfg.Identity.Leeway, zapLogger)
	authUseCase := authUC.New(inspector, users, sessions, zapLogger)

	renderer, err := web.NewRenderer()
	if err != nil {
		zapLogger.Fatal("template parsing failed", zap.Error(err))
	}
	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Pages:   apiHandler.NewPageHandler(renderer, ctxAdapter, zapLogger),
		Auth:    apiHandler.NewAuthHandler(authUseCase, renderer, ctxAdapter, zapLogger),
		Account: apiHandler.NewAccountHandler(authUseCase, renderer, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
		Pprof:   cfg.HTTP.EnablePprof,
	}
	if appMetrics != nil {
		handlers.Metrics = appMetrics.Handler()
	}

	sessionMiddleware := middleware.Session(sessions, middleware.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
		TTL:    cfg.Session.CookieTTL,
	}, zapLogger)
	guard := middleware.NewGuard("/login", cfg.Session.RehydrateTimeout, zapLogger, appMetrics)
	r := router.New(handlers, sessionMiddleware, guard)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", driver),
			zap.String("api", cfg.API.URL))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
