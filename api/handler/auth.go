package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/middleware"
	"github.com/fastygo/portal/pkg/httpcontext"
	authUC "github.com/fastygo/portal/usecase/auth"
	"github.com/fastygo/portal/web"
)

type AuthHandler struct {
	baseHandler
	uc *authUC.UseCase
}

func NewAuthHandler(uc *authUC.UseCase, renderer *web.Renderer, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, renderer, logger),
		uc:          uc,
	}
}

// LoginPage shows the login form, or moves a logged in visitor on.
func (h *AuthHandler) LoginPage(ctx *fasthttp.RequestCtx) {
	next := string(ctx.QueryArgs().Peek("next"))
	if acc := h.accessor(ctx); acc != nil && acc.IsLoggedIn() {
		h.redirect(ctx, transport.SafeNext(next))
		return
	}
	h.render(ctx, http.StatusOK, "login", pageData{Title: "Log in", Next: next})
}

// Login accepts the identity provider token as a form field, a JSON body or
// an Authorization header.
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc == nil {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}

	var req transport.LoginRequest
	if wantsJSON(ctx) {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
			return
		}
	} else {
		req.Token = string(ctx.FormValue("token"))
		req.Next = string(ctx.FormValue("next"))
	}
	if req.Token == "" {
		req.Token = middleware.BearerToken(ctx)
	}
	next := transport.SafeNext(req.Next)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	_, err := h.uc.Login(stdCtx, acc, req.Token)
	switch {
	case err == nil:
	case authUC.IsIdentityError(err):
		// Identity failures are logged by the use case and not shown.
		if wantsJSON(ctx) {
			h.respondError(ctx, err)
			return
		}
		h.redirect(ctx, "/login?next="+url.QueryEscape(next))
		return
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		if wantsJSON(ctx) {
			h.respondError(ctx, err)
			return
		}
		h.redirect(ctx, "/register?next="+url.QueryEscape(next))
		return
	default:
		h.log(stdCtx).Warn("login failed", zap.Error(err))
		if wantsJSON(ctx) {
			h.respondError(ctx, err)
			return
		}
		h.renderError(ctx, "login", pageData{Title: "Log in", Next: next}, err)
		return
	}

	if wantsJSON(ctx) {
		h.respondSuccess(ctx, http.StatusOK, acc.View(), transport.Meta{Next: next})
		return
	}
	h.redirect(ctx, next)
}

// RegisterPage needs a token in the session from a previous login attempt.
func (h *AuthHandler) RegisterPage(ctx *fasthttp.RequestCtx) {
	next := string(ctx.QueryArgs().Peek("next"))
	acc := h.accessor(ctx)
	switch {
	case acc == nil || acc.Token() == "":
		h.redirect(ctx, "/login?next="+url.QueryEscape("/register"))
		return
	case acc.IsLoggedIn():
		h.redirect(ctx, transport.SafeNext(next))
		return
	}
	h.render(ctx, http.StatusOK, "register", pageData{Title: "Register", Next: next})
}

func (h *AuthHandler) Register(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc == nil {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}

	var req transport.RegisterRequest
	if wantsJSON(ctx) {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
			return
		}
	} else {
		req = transport.RegisterRequest{
			Email:     string(ctx.FormValue("email")),
			FirstName: string(ctx.FormValue("first_name")),
			LastName:  string(ctx.FormValue("last_name")),
			Phone:     string(ctx.FormValue("phone")),
			Next:      string(ctx.FormValue("next")),
		}
	}
	next := req.Next

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	_, err := h.uc.Register(stdCtx, acc, authUC.Registration{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		h.log(stdCtx).Warn("registration failed", zap.Error(err))
		switch {
		case wantsJSON(ctx):
			h.respondError(ctx, err)
		case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
			h.redirect(ctx, "/login?next="+url.QueryEscape("/register"))
		default:
			h.renderError(ctx, "register", pageData{Title: "Register", Next: next, Email: req.Email}, err)
		}
		return
	}

	if wantsJSON(ctx) {
		h.respondSuccess(ctx, http.StatusCreated, acc.View(), transport.Meta{Next: transport.SafeNext(next)})
		return
	}
	h.redirect(ctx, transport.SafeNext(next))
}

func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc != nil {
		stdCtx, cancel := h.requestContext(ctx)
		defer cancel()
		if err := h.uc.Logout(stdCtx, acc, httpcontext.SessionID(ctx)); err != nil {
			// The session is already cleared in memory.
			h.log(stdCtx).Warn("logout left persisted state behind", zap.Error(err))
		}
	}

	if wantsJSON(ctx) {
		h.respondSuccess(ctx, http.StatusOK, domain.PublicSession{}, nil)
		return
	}
	h.redirect(ctx, "/")
}
