package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/web"
)

// pageData is what every template receives.
type pageData struct {
	Title   string
	Session domain.PublicSession
	Error   string
	Next    string
	Email   string
	Plans   []plan
}

type plan struct {
	Name    string
	Price   string
	Summary string
}

var plans = []plan{
	{Name: "Starter", Price: "Free", Summary: "One user, community support."},
	{Name: "Team", Price: "$29/mo", Summary: "Up to ten users, email support."},
	{Name: "Business", Price: "$99/mo", Summary: "Unlimited users, priority support."},
}

// PageHandler serves the public pages and the guarded dashboard.
type PageHandler struct {
	baseHandler
}

func NewPageHandler(renderer *web.Renderer, adapter *httpcontext.Adapter, logger *zap.Logger) *PageHandler {
	return &PageHandler{baseHandler: newBaseHandler(adapter, renderer, logger)}
}

func (h *PageHandler) Home(ctx *fasthttp.RequestCtx) {
	h.render(ctx, http.StatusOK, "home", pageData{Title: "Home"})
}

func (h *PageHandler) Services(ctx *fasthttp.RequestCtx) {
	h.render(ctx, http.StatusOK, "services", pageData{Title: "Services"})
}

func (h *PageHandler) Pricing(ctx *fasthttp.RequestCtx) {
	h.render(ctx, http.StatusOK, "pricing", pageData{Title: "Pricing", Plans: plans})
}

func (h *PageHandler) About(ctx *fasthttp.RequestCtx) {
	h.render(ctx, http.StatusOK, "about", pageData{Title: "About"})
}

func (h *PageHandler) Contact(ctx *fasthttp.RequestCtx) {
	h.render(ctx, http.StatusOK, "contact", pageData{Title: "Contact"})
}

func (h *PageHandler) NotFound(ctx *fasthttp.RequestCtx) {
	h.render(ctx, http.StatusNotFound, "error", pageData{Title: "Not found", Error: "This page does not exist."})
}
