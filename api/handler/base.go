package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/middleware"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/pkg/logger"
	"github.com/fastygo/portal/usecase/account"
	"github.com/fastygo/portal/web"
)

type baseHandler struct {
	adapter  *httpcontext.Adapter
	renderer *web.Renderer
	logger   *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, renderer *web.Renderer, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, renderer: renderer, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, h.logger)
}

// accessor returns the session facade for the request, or nil outside the
// session middleware.
func (h baseHandler) accessor(ctx *fasthttp.RequestCtx) *account.Accessor {
	store, ok := middleware.SessionStore(ctx)
	if !ok {
		return nil
	}
	return account.New(store)
}

func (h baseHandler) view(ctx *fasthttp.RequestCtx) domain.PublicSession {
	if acc := h.accessor(ctx); acc != nil {
		return acc.View()
	}
	return domain.PublicSession{}
}

func (h baseHandler) render(ctx *fasthttp.RequestCtx, status int, page string, data pageData) {
	data.Session = h.view(ctx)
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetStatusCode(status)
	if h.renderer == nil {
		return
	}
	if err := h.renderer.Render(ctx, page, data); err != nil {
		h.logger.Error("page render failed", zap.String("page", page), zap.Error(err))
		ctx.ResetBody()
		ctx.SetStatusCode(http.StatusInternalServerError)
		ctx.SetBodyString(http.StatusText(http.StatusInternalServerError))
	}
}

// renderError shows err on page with the status mapped from its code.
func (h baseHandler) renderError(ctx *fasthttp.RequestCtx, page string, data pageData, err error) {
	status, _ := mapError(err)
	data.Error = userMessage(err)
	h.render(ctx, status, page, data)
}

func (h baseHandler) redirect(ctx *fasthttp.RequestCtx, target string) {
	ctx.Response.Header.Set(fasthttp.HeaderCacheControl, "no-store")
	ctx.Redirect(target, http.StatusSeeOther)
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data any, meta any) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, meta))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	h.respondJSON(ctx, status, transport.NewError(code, userMessage(err), nil))
}

func wantsJSON(ctx *fasthttp.RequestCtx) bool {
	return strings.HasPrefix(string(ctx.Request.Header.ContentType()), "application/json")
}

func mapError(err error) (int, string) {
	code := domain.CodeOf(err)
	switch code {
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized, string(code)
	case domain.ErrCodeForbidden:
		return http.StatusForbidden, string(code)
	case domain.ErrCodeInvalid:
		return http.StatusBadRequest, string(code)
	case domain.ErrCodeNotFound:
		return http.StatusNotFound, string(code)
	case domain.ErrCodeConflict:
		return http.StatusConflict, string(code)
	case domain.ErrCodeUnavailable:
		return http.StatusServiceUnavailable, string(code)
	case domain.ErrCodeUpstream, domain.ErrCodeMalformed:
		return http.StatusBadGateway, string(code)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

// userMessage keeps internal details out of pages and JSON errors.
func userMessage(err error) string {
	switch domain.CodeOf(err) {
	case domain.ErrCodeUnauthorized:
		return "Your sign-in is no longer valid. Please log in again."
	case domain.ErrCodeForbidden:
		return "You are not allowed to do that."
	case domain.ErrCodeInvalid:
		return "Some of the details you entered are not valid."
	case domain.ErrCodeNotFound:
		return "We could not find your account."
	case domain.ErrCodeConflict:
		return "An account with these details already exists."
	case domain.ErrCodeUnavailable:
		return "The service is temporarily unavailable. Please try again."
	case domain.ErrCodeUpstream, domain.ErrCodeMalformed:
		return "The service returned an unexpected response. Please try again."
	}
	return "Something went wrong."
}
