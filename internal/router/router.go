package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/fastygo/portal/api/handler"
	"github.com/fastygo/portal/internal/middleware"
)

type Handlers struct {
	Pages   *apiHandler.PageHandler
	Auth    *apiHandler.AuthHandler
	Account *apiHandler.AccountHandler
	Health  *apiHandler.HealthHandler
	// Metrics is mounted on /metrics when set.
	Metrics fasthttp.RequestHandler
	Pprof   bool
}

// New wires every route. Pages and the JSON API run inside the session
// middleware; health, metrics and pprof do not, so probes never create sessions.
func New(handlers Handlers, session func(fasthttp.RequestHandler) fasthttp.RequestHandler, guard *middleware.Guard) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}
	if handlers.Pprof {
		r.GET("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	// Public pages
	r.GET("/", session(handlers.Pages.Home))
	r.GET("/services", session(handlers.Pages.Services))
	r.GET("/pricing", session(handlers.Pages.Pricing))
	r.GET("/about", session(handlers.Pages.About))
	r.GET("/contact", session(handlers.Pages.Contact))

	// Auth
	r.GET("/login", session(handlers.Auth.LoginPage))
	r.POST("/login", session(handlers.Auth.Login))
	r.GET("/register", session(handlers.Auth.RegisterPage))
	r.POST("/register", session(handlers.Auth.Register))
	r.POST("/logout", session(handlers.Auth.Logout))

	// Protected routes
	r.GET("/dashboard", session(guard.Protect(handlers.Account.Dashboard)))
	r.GET("/api/session", session(handlers.Account.Session))
	r.GET("/api/me", session(guard.ProtectAPI(handlers.Account.Me)))
	r.PATCH("/api/me", session(guard.ProtectAPI(handlers.Account.UpdateMe)))
	r.DELETE("/api/me", session(guard.ProtectAPI(handlers.Account.DeleteMe)))

	r.NotFound = session(handlers.Pages.NotFound)

	return r
}
