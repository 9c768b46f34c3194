package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/permission"
	"github.com/dave593/portalauth/policy"
	"github.com/dave593/portalauth/security"
)

const (
	ctxBody      = "portalauth.body"
	ctxPrincipal = "portalauth.principal"
)

func newRouter(engine *portalauth.Engine, gatherer prometheus.Gatherer, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, portalauth.OK("ok", nil))
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h := &handlers{engine: engine}

	auth := r.Group("/api/auth")
	auth.POST("/register", screen(engine, security.RouteAuth, security.EndpointRegister), h.register)
	auth.POST("/login", screen(engine, security.RouteAuth, security.EndpointLogin), h.login)
	auth.POST("/refresh", screen(engine, security.RouteAuth, security.EndpointRefresh), h.refresh)
	auth.POST("/logout", screen(engine, security.RouteGeneral, ""), h.logout)
	auth.POST("/change-password", screen(engine, security.RouteAuth, security.EndpointChangePassword), h.changePassword)
	auth.GET("/me", screen(engine, security.RouteGeneral, ""), h.me)

	api := r.Group("/api", screen(engine, security.RouteGeneral, ""), guard(engine))
	api.GET("/companies/:company/reports",
		require(engine, policy.Requirement{Permissions: []permission.Permission{permission.Read}}),
		requireCompany(engine),
		h.reports,
	)
	api.DELETE("/companies/:company/reports/:id",
		require(engine, policy.Requirement{
			Roles:       []permission.Role{permission.RoleAdmin, permission.RoleInspector},
			Permissions: []permission.Permission{permission.Delete, permission.Admin},
		}),
		requireCompany(engine),
		h.deleteReport,
	)

	return r
}

type handlers struct {
	engine *portalauth.Engine
}

func (h *handlers) register(c *gin.Context) {
	body := bodyOf(c)
	s, err := h.engine.Register(c.Request.Context(), portalauth.RegisterRequest{
		Email:    str(body, "email"),
		Password: str(body, "password"),
		Name:     str(body, "name"),
		Company:  str(body, "company"),
		Role:     str(body, "role"),
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, portalauth.OK("User registered successfully", s))
}

func (h *handlers) login(c *gin.Context) {
	body := bodyOf(c)
	s, err := h.engine.Login(c.Request.Context(), str(body, "email"), str(body, "password"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, portalauth.OK("Login successful", s))
}

func (h *handlers) refresh(c *gin.Context) {
	pair, err := h.engine.Refresh(c.Request.Context(), str(bodyOf(c), "refreshToken"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, portalauth.OK("Token refreshed", gin.H{"tokens": pair}))
}

func (h *handlers) logout(c *gin.Context) {
	access, _ := bearer(c)
	if err := h.engine.Logout(c.Request.Context(), access, str(bodyOf(c), "refreshToken")); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, portalauth.OK("Logged out", nil))
}

func (h *handlers) changePassword(c *gin.Context) {
	access, _ := bearer(c)
	body := bodyOf(c)
	err := h.engine.ChangePassword(c.Request.Context(), access, str(body, "currentPassword"), str(body, "newPassword"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, portalauth.OK("Password changed", nil))
}

func (h *handlers) me(c *gin.Context) {
	access, _ := bearer(c)
	profile, err := h.engine.WhoAmI(c.Request.Context(), access)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, portalauth.OK("Profile", gin.H{"user": profile}))
}

func (h *handlers) reports(c *gin.Context) {
	c.JSON(http.StatusOK, portalauth.OK("Reports", gin.H{
		"company": c.Param("company"),
		"reports": []any{},
	}))
}

func (h *handlers) deleteReport(c *gin.Context) {
	c.JSON(http.StatusOK, portalauth.OK("Report deleted", gin.H{"id": c.Param("id")}))
}

// screen runs the security pipeline, stores the sanitized body and writes the
// sanitized path and query values back onto the request.
func screen(engine *portalauth.Engine, class security.RouteClass, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := portalauth.WithClientIP(c.Request.Context(), c.ClientIP())
		if id := c.GetHeader("X-Request-Id"); id != "" {
			ctx = portalauth.WithRequestID(ctx, id)
		}
		c.Request = c.Request.WithContext(ctx)

		var body map[string]any
		if c.Request.ContentLength != 0 && c.Request.Body != nil {
			if err := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)).Decode(&body); err != nil {
				abort(c, &security.Failure{
					Code:    security.CodeValidationError,
					Message: "request validation failed",
					Fields:  []security.FieldViolation{{Field: "body", Rule: "type", Message: "malformed request body"}},
				})
				return
			}
		}

		params := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}
		query := make(map[string]string)
		for k, v := range c.Request.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}

		req := &security.Request{
			ClientAddr: c.ClientIP(),
			Class:      class,
			Endpoint:   endpoint,
			Body:       body,
			Query:      query,
			Params:     params,
		}
		if err := engine.Screen(ctx, req); err != nil {
			abort(c, err)
			return
		}

		// Handlers and later gates read the cleaned values through c.Param
		// and c.Query.
		for i := range c.Params {
			if v, ok := req.Params[c.Params[i].Key]; ok {
				c.Params[i].Value = v
			}
		}
		if len(req.Query) > 0 {
			values := make(url.Values, len(req.Query))
			for k, v := range req.Query {
				values.Set(k, v)
			}
			c.Request.URL.RawQuery = values.Encode()
		}
		c.Set(ctxBody, req.Body)
		c.Next()
	}
}

func guard(engine *portalauth.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			engine.RecordDenial(c.Request.Context(), c.Request.Method+" "+c.FullPath(), portalauth.ErrAuthRequired)
			abort(c, portalauth.ErrAuthRequired)
			return
		}
		p, err := engine.Verify(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(ctxPrincipal, p)
		c.Next()
	}
}

func require(engine *portalauth.Engine, req policy.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := req
		req.Resource = c.Request.Method + " " + c.FullPath()
		if err := engine.Authorize(c.Request.Context(), principalOf(c), req); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func requireCompany(engine *portalauth.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		field := engine.TenantField()
		src := policy.TenantSources{
			Path:  c.Param(field),
			Query: c.Query(field),
			Body:  policy.TenantFromBody(bodyOf(c), field),
		}
		req := policy.Requirement{Resource: c.Request.Method + " " + c.FullPath()}
		tenant, err := src.Resolve()
		if err != nil {
			req.TenantConflict = true
		} else {
			req.Tenant = tenant
		}
		if err := engine.Authorize(c.Request.Context(), principalOf(c), req); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.LogAttrs(c.Request.Context(), slog.LevelInfo, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.String("client", c.ClientIP()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func abort(c *gin.Context, err error) {
	res := portalauth.Failure(err)
	if res.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(res.RetryAfter))
	}
	c.AbortWithStatusJSON(res.Status(), res)
}

func bearer(c *gin.Context) (string, bool) {
	const prefix = "bearer "
	h := c.GetHeader("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

func principalOf(c *gin.Context) *identity.Principal {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return nil
	}
	p, ok := v.(identity.Principal)
	if !ok {
		return nil
	}
	return &p
}

func bodyOf(c *gin.Context) map[string]any {
	v, _ := c.Get(ctxBody)
	b, _ := v.(map[string]any)
	return b
}

func str(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}
