package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/api/transport"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/pkg/httpcontext"
	authUC "github.com/fastygo/portal/usecase/auth"
	"github.com/fastygo/portal/web"
)

// AccountHandler serves the signed-in user's data as JSON and as the
// dashboard page.
type AccountHandler struct {
	baseHandler
	uc *authUC.UseCase
}

func NewAccountHandler(uc *authUC.UseCase, renderer *web.Renderer, adapter *httpcontext.Adapter, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		baseHandler: newBaseHandler(adapter, renderer, logger),
		uc:          uc,
	}
}

func (h *AccountHandler) meta(ctx *fasthttp.RequestCtx) transport.Meta {
	return transport.Meta{RequestID: httpcontext.RequestID(ctx)}
}

// Session reports the public session view without touching the backend.
func (h *AccountHandler) Session(ctx *fasthttp.RequestCtx) {
	h.respondSuccess(ctx, http.StatusOK, h.view(ctx), h.meta(ctx))
}

func (h *AccountHandler) Me(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc == nil {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.Refresh(stdCtx, acc)
	if err != nil {
		h.log(stdCtx).Warn("user refresh failed", zap.Error(err))
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user, h.meta(ctx))
}

func (h *AccountHandler) UpdateMe(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc == nil {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}
	var req transport.ProfileUpdateRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.UpdateProfile(stdCtx, acc, req.ToDomain())
	if err != nil {
		h.log(stdCtx).Warn("profile update failed", zap.Error(err))
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user, h.meta(ctx))
}

func (h *AccountHandler) DeleteMe(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc == nil {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.DeleteAccount(stdCtx, acc, httpcontext.SessionID(ctx)); err != nil {
		h.log(stdCtx).Warn("account deletion failed", zap.Error(err))
		h.respondError(ctx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}

// Dashboard refreshes the user before rendering. A failed refresh falls back
// to the user already in the session unless it ended the login.
func (h *AccountHandler) Dashboard(ctx *fasthttp.RequestCtx) {
	acc := h.accessor(ctx)
	if acc == nil {
		h.redirect(ctx, "/login?next=%2Fdashboard")
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	data := pageData{Title: "Dashboard"}
	if _, err := h.uc.Refresh(stdCtx, acc); err != nil {
		h.log(stdCtx).Warn("dashboard refresh failed", zap.Error(err))
		if !acc.IsLoggedIn() {
			h.redirect(ctx, "/login?next=%2Fdashboard")
			return
		}
		data.Error = userMessage(err)
	}
	h.render(ctx, http.StatusOK, "dashboard", data)
}
