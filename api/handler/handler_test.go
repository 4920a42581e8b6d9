package handler

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/identity"
	"github.com/fastygo/portal/internal/infrastructure/monitor"
	"github.com/fastygo/portal/internal/middleware"
	"github.com/fastygo/portal/internal/session"
	"github.com/fastygo/portal/pkg/httpcontext"
	"github.com/fastygo/portal/repository/memory"
	authUC "github.com/fastygo/portal/usecase/auth"
	"github.com/fastygo/portal/web"
)

type fakeInspector struct {
	err error
}

func (f *fakeInspector) Inspect(string) (identity.Claims, error) {
	return identity.Claims{Subject: "fb-1"}, f.err
}

type fakeUsers struct {
	user     *domain.User
	loginErr error
	fetchErr error
	deleted  bool
}

func (f *fakeUsers) Login(context.Context, string) (*domain.User, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.user.Clone(), nil
}

func (f *fakeUsers) GetUserData(context.Context, string) (*domain.User, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.user.Clone(), nil
}

func (f *fakeUsers) RegisterUser(_ context.Context, _ string, user *domain.User) (*domain.User, error) {
	out := user.Clone()
	out.ID = "u-new"
	f.user = out
	return out.Clone(), nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, _ string, update domain.UserUpdate) (*domain.User, error) {
	out := f.user.Clone()
	out.Status = update.Status
	if update.Phone != nil {
		out.Profile.Phone = update.Phone
	}
	f.user = out
	return out.Clone(), nil
}

func (f *fakeUsers) DeleteUser(context.Context, string) error {
	f.deleted = true
	return nil
}

func (f *fakeUsers) Invalidate(tags ...domain.Tag) int { return len(tags) }
func (f *fakeUsers) Forget(string) int                 { return 0 }

type harness struct {
	t         *testing.T
	inspector *fakeInspector
	users     *fakeUsers
	manager   *session.Manager
	session   func(fasthttp.RequestHandler) fasthttp.RequestHandler
	auth      *AuthHandler
	account   *AccountHandler
	pages     *PageHandler
	sid       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	inspector := &fakeInspector{}
	users := &fakeUsers{user: &domain.User{ID: "u1", Email: "ada@example.com", Status: domain.UserStatusActive}}
	manager := session.NewManager(memory.NewStateStorage(), session.ManagerConfig{}, nil, nil)
	uc := authUC.New(inspector, users, manager, nil)
	renderer := web.MustRenderer()
	adapter := httpcontext.NewAdapter(time.Second)

	return &harness{
		t:         t,
		inspector: inspector,
		users:     users,
		manager:   manager,
		session:   middleware.Session(manager, middleware.CookieConfig{Name: "sid"}, nil),
		auth:      NewAuthHandler(uc, renderer, adapter, nil),
		account:   NewAccountHandler(uc, renderer, adapter, nil),
		pages:     NewPageHandler(renderer, adapter, nil),
	}
}

// do runs h behind the session middleware, keeping the sid cookie between calls.
func (hs *harness) do(h fasthttp.RequestHandler, method, path, contentType, body string) *fasthttp.RequestCtx {
	hs.t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	ctx.Request.Header.SetHost("portal.test")
	if contentType != "" {
		ctx.Request.Header.SetContentType(contentType)
	}
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	if hs.sid != "" {
		ctx.Request.Header.SetCookie("sid", hs.sid)
	}

	hs.session(h)(&ctx)

	var cookie fasthttp.Cookie
	cookie.SetKey("sid")
	if ctx.Response.Header.Cookie(&cookie) {
		hs.sid = string(cookie.Value())
	}
	return &ctx
}

func (hs *harness) store() *session.Store {
	hs.t.Helper()
	s, err := hs.manager.Acquire(context.Background(), hs.sid)
	require.NoError(hs.t, err)
	return s
}

func location(t *testing.T, ctx *fasthttp.RequestCtx) *url.URL {
	t.Helper()
	loc, err := url.Parse(string(ctx.Response.Header.Peek(fasthttp.HeaderLocation)))
	require.NoError(t, err)
	return loc
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

const formType = "application/x-www-form-urlencoded"

func TestLogin_FormSuccessRedirectsToNext(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc&next=%2Fpricing")

	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Equal(t, "/pricing", location(t, ctx).Path)
	snap := hs.store().Snapshot()
	assert.True(t, snap.IsLoggedIn())
	assert.Equal(t, "abc", snap.Token)
	assert.Equal(t, "u1", snap.User.ID)
}

func TestLogin_RejectsOffsiteNext(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc&next=%2F%2Fevil.example")

	assert.Equal(t, "/dashboard", location(t, ctx).Path)
}

func TestLogin_IdentityFailureReturnsToLogin(t *testing.T) {
	hs := newHarness(t)
	hs.inspector.err = domain.ErrTokenExpired

	ctx := hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Equal(t, "/login", location(t, ctx).Path)
	assert.Empty(t, hs.store().Snapshot().Token)
}

func TestLogin_UnknownUserGoesToRegister(t *testing.T) {
	hs := newHarness(t)
	hs.users.loginErr = domain.NewError(domain.ErrCodeNotFound, "no such user")

	ctx := hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	assert.Equal(t, "/register", location(t, ctx).Path)
	assert.Equal(t, "abc", hs.store().Snapshot().Token)

	page := hs.do(hs.auth.RegisterPage, "GET", "/register", "", "")
	assert.Equal(t, fasthttp.StatusOK, page.Response.StatusCode())
	assert.Contains(t, string(page.Response.Body()), "<form")
}

func TestLogin_BackendFailureRendersError(t *testing.T) {
	hs := newHarness(t)
	hs.users.loginErr = domain.NewError(domain.ErrCodeUnavailable, "down")

	ctx := hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "temporarily unavailable")
}

func TestLogin_JSON(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.auth.Login, "POST", "/login", "application/json", `{"token":"abc"}`)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := decode(t, ctx)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["is_logged_in"])
	assert.NotContains(t, string(ctx.Response.Body()), `"abc"`)

	hs.inspector.err = domain.ErrInvalidToken
	ctx = hs.do(hs.auth.Login, "POST", "/login", "application/json", `{"token":"bad"}`)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestLoginPage_LoggedInMovesOn(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.auth.LoginPage, "GET", "/login?next=%2Fabout", "", "")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `value="/about"`)

	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")
	ctx = hs.do(hs.auth.LoginPage, "GET", "/login?next=%2Fabout", "", "")
	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Equal(t, "/about", location(t, ctx).Path)
}

func TestRegister_Flow(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.auth.RegisterPage, "GET", "/register", "", "")
	assert.Equal(t, "/login", location(t, ctx).Path)

	hs.users.loginErr = domain.NewError(domain.ErrCodeNotFound, "no such user")
	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	ctx = hs.do(hs.auth.Register, "POST", "/register", formType, "email=&first_name=Ada")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = hs.do(hs.auth.Register, "POST", "/register", formType, "email=ada%40example.com&first_name=Ada")
	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Equal(t, "/dashboard", location(t, ctx).Path)
	snap := hs.store().Snapshot()
	assert.True(t, snap.IsLoggedIn())
	assert.Equal(t, "u-new", snap.User.ID)
}

func TestRegister_JSONCarriesNext(t *testing.T) {
	hs := newHarness(t)
	hs.users.loginErr = domain.NewError(domain.ErrCodeNotFound, "no such user")
	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	ctx := hs.do(hs.auth.Register, "POST", "/register", "application/json",
		`{"email":"ada@example.com","first_name":"Ada","next":"/pricing"}`)

	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	body := decode(t, ctx)
	assert.Equal(t, "/pricing", body["meta"].(map[string]any)["next"])
	assert.True(t, hs.store().Snapshot().IsLoggedIn())
}

func TestRegister_JSONRejectsOffsiteNext(t *testing.T) {
	hs := newHarness(t)
	hs.users.loginErr = domain.NewError(domain.ErrCodeNotFound, "no such user")
	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	ctx := hs.do(hs.auth.Register, "POST", "/register", "application/json",
		`{"email":"ada@example.com","next":"//evil.example"}`)

	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	assert.Equal(t, "/dashboard", decode(t, ctx)["meta"].(map[string]any)["next"])
}

func TestLogout_ClearsSession(t *testing.T) {
	hs := newHarness(t)
	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")
	require.True(t, hs.store().Snapshot().IsLoggedIn())

	ctx := hs.do(hs.auth.Logout, "POST", "/logout", "", "")

	assert.Equal(t, "/", location(t, ctx).Path)
	snap := hs.store().Snapshot()
	assert.False(t, snap.IsLoggedIn())
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)
}

func TestAccount_SessionAndMe(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.account.Session, "GET", "/api/session", "", "")
	body := decode(t, ctx)
	assert.Equal(t, false, body["data"].(map[string]any)["is_logged_in"])
	assert.NotEmpty(t, body["meta"].(map[string]any)["request_id"])

	ctx = hs.do(hs.account.Me, "GET", "/api/me", "", "")
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")
	hs.users.user.Email = "new@example.com"

	ctx = hs.do(hs.account.Me, "GET", "/api/me", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "new@example.com", decode(t, ctx)["data"].(map[string]any)["email"])
	assert.Equal(t, "new@example.com", hs.store().Snapshot().User.Email)
}

func TestAccount_UpdateAndDelete(t *testing.T) {
	hs := newHarness(t)
	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	ctx := hs.do(hs.account.UpdateMe, "PATCH", "/api/me", "application/json", `{"phone":"555"}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "555", *hs.store().Snapshot().User.Profile.Phone)
	assert.Equal(t, domain.UserStatusActive, hs.users.user.Status)

	ctx = hs.do(hs.account.UpdateMe, "PATCH", "/api/me", "application/json", `{`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = hs.do(hs.account.DeleteMe, "DELETE", "/api/me", "", "")
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.True(t, hs.users.deleted)
	assert.False(t, hs.store().Snapshot().IsLoggedIn())
}

func TestDashboard(t *testing.T) {
	hs := newHarness(t)
	hs.do(hs.auth.Login, "POST", "/login", formType, "token=abc")

	ctx := hs.do(hs.account.Dashboard, "GET", "/dashboard", "", "")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "ada@example.com")

	hs.users.fetchErr = domain.NewError(domain.ErrCodeUnavailable, "down")
	ctx = hs.do(hs.account.Dashboard, "GET", "/dashboard", "", "")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "temporarily unavailable")

	hs.users.fetchErr = domain.NewError(domain.ErrCodeUnauthorized, "revoked")
	ctx = hs.do(hs.account.Dashboard, "GET", "/dashboard", "", "")
	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Equal(t, "/login", location(t, ctx).Path)
}

func TestPages(t *testing.T) {
	hs := newHarness(t)

	ctx := hs.do(hs.pages.Pricing, "GET", "/pricing", "", "")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Starter")
	assert.Contains(t, string(ctx.Response.Body()), "Log in")

	ctx = hs.do(hs.pages.NotFound, "GET", "/nope", "", "")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

func TestHealth(t *testing.T) {
	var ctx fasthttp.RequestCtx
	NewHealthHandler(staticStatus{Storage: true, Backend: true, StorageDriver: "memory"}, nil, nil).Check(&ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var degraded fasthttp.RequestCtx
	NewHealthHandler(staticStatus{Storage: true}, nil, nil).Check(&degraded)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, degraded.Response.StatusCode())
	assert.Equal(t, "DEGRADED", decode(t, &degraded)["code"])
}
