package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/internal/session"
	"github.com/fastygo/portal/pkg/httpcontext"
)

const userValueStore = "portal.session"

// SessionSource hands out the store of a browser session.
type SessionSource interface {
	Acquire(ctx context.Context, sid string) (*session.Store, error)
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Session attaches the sid cookie, issuing one when it is missing or not a
// UUID, and puts the session store on the request.
func Session(source SessionSource, cookie CookieConfig, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cookie.Name == "" {
		cookie.Name = "sid"
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			sid := string(ctx.Request.Header.Cookie(cookie.Name))
			if _, err := uuid.Parse(sid); err != nil {
				sid = uuid.NewString()
			}
			setCookie(ctx, cookie, sid)
			httpcontext.SetSessionID(ctx, sid)

			store, err := source.Acquire(context.Background(), sid)
			if err != nil {
				logger.Error("failed to acquire session", zap.Error(err))
				ctx.Error(fasthttp.StatusMessage(fasthttp.StatusInternalServerError), fasthttp.StatusInternalServerError)
				return
			}
			ctx.SetUserValue(userValueStore, store)
			next(ctx)
		}
	}
}

// SessionStore returns the store attached by Session.
func SessionStore(ctx *fasthttp.RequestCtx) (*session.Store, bool) {
	store, ok := ctx.UserValue(userValueStore).(*session.Store)
	return store, ok && store != nil
}

func setCookie(ctx *fasthttp.RequestCtx, cfg CookieConfig, sid string) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)

	c.SetKey(cfg.Name)
	c.SetValue(sid)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(cfg.Secure)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if cfg.TTL > 0 {
		c.SetMaxAge(int(cfg.TTL.Seconds()))
	}
	ctx.Response.Header.SetCookie(c)
}
