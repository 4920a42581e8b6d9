package middleware

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/metrics"
	"github.com/fastygo/portal/internal/session"
)

// GuardState is where the guard is for the current request.
type GuardState int

const (
	GuardChecking GuardState = iota
	GuardResolved
)

func (s GuardState) String() string {
	if s == GuardResolved {
		return "resolved"
	}
	return "checking"
}

// Decision is the outcome of resolving the guard for one request.
type Decision struct {
	State    GuardState
	Allowed  bool
	TimedOut bool
}

// Guard gates protected routes on the session login state. It waits for the
// session to finish rehydrating, bounded by wait, then reads the login state
// once. A session still rehydrating when wait runs out is judged on what it
// holds so far, which can redirect a user who is in fact logged in.
type Guard struct {
	loginPath string
	wait      time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewGuard(loginPath string, wait time.Duration, logger *zap.Logger, m *metrics.Metrics) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		loginPath: loginPath,
		wait:      wait,
		logger:    logger,
		metrics:   m,
	}
}

// Resolve moves from checking to resolved for store.
func (g *Guard) Resolve(store *session.Store) Decision {
	d := Decision{State: GuardChecking}
	if store == nil {
		d.State = GuardResolved
		return d
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()
	select {
	case <-store.Ready():
	case <-timer.C:
		d.TimedOut = true
	}

	d.Allowed = store.Snapshot().IsLoggedIn()
	d.State = GuardResolved
	return d
}

// Protect redirects anonymous visitors to the login page with a next parameter.
func (g *Guard) Protect(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return g.protect(next, func(ctx *fasthttp.RequestCtx) {
		target := g.loginPath + "?next=" + url.QueryEscape(string(ctx.RequestURI()))
		ctx.Response.Header.Set(fasthttp.HeaderCacheControl, "no-store")
		ctx.Redirect(target, fasthttp.StatusSeeOther)
	})
}

// ProtectAPI answers anonymous JSON clients with 401 instead of a redirect.
func (g *Guard) ProtectAPI(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return g.protect(next, func(ctx *fasthttp.RequestCtx) {
		body, _ := json.Marshal(transport.NewError(string(domain.ErrCodeUnauthorized), domain.ErrUnauthorized.Error(), nil))
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBody(body)
	})
}

func (g *Guard) protect(next, deny fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		store, _ := SessionStore(ctx)
		d := g.Resolve(store)

		if d.TimedOut {
			g.logger.Warn("session not rehydrated before guard deadline",
				zap.ByteString("path", ctx.Path()),
				zap.Duration("wait", g.wait))
		}
		if !d.Allowed {
			g.metrics.GuardDecision("redirect")
			deny(ctx)
			return
		}
		g.metrics.GuardDecision("allow")
		next(ctx)
	}
}
