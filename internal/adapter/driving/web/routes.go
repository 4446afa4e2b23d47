package web

import (
	"io/fs"
	"net/http"

	httphandler "github.com/ericfisherdev/cruciverba/internal/adapter/driving/http"
	"github.com/ericfisherdev/cruciverba/internal/config"
)

// Rate-limit rule names, one bucket set per rule and client.
const (
	ruleGlobal = "global"
	ruleForm   = "form"
	ruleAdmin  = "admin"
	ruleExport = "export"
	ruleDelete = "delete"
)

// RateLimits holds the request budgets of the page routes.
type RateLimits struct {
	Global config.RateLimits
	Form   config.RateLimits
	Admin  config.RateLimits
	Export config.RateLimits
	Delete config.RateLimits
}

// RateLimitsFromConfig picks the page budgets out of cfg.
func RateLimitsFromConfig(cfg *config.Config) RateLimits {
	return RateLimits{
		Global: cfg.RateLimitGlobal,
		Form:   cfg.RateLimitForm,
		Admin:  cfg.RateLimitAdmin,
		Export: cfg.RateLimitExport,
		Delete: cfg.RateLimitDelete,
	}
}

// RegisterRoutes registers all web GUI routes on the provided mux. Every page
// route counts against the global budget and, where it has one, its own.
// Static assets are served from the embedded filesystem at /static/* and
// are not throttled.
func RegisterRoutes(mux *http.ServeMux, h *Handler, rl *httphandler.RateLimiter, limits RateLimits) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	limit := func(rule string, budget config.RateLimits, fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		if rule != "" {
			next = rl.Limit(rule, budget, next)
		}
		return rl.Limit(ruleGlobal, limits.Global, next)
	}

	// Contributor pages.
	mux.Handle("GET /{$}", limit(ruleForm, limits.Form, h.Index))
	mux.Handle("POST /{$}", limit(ruleForm, limits.Form, h.Submit))
	mux.Handle("GET /logout", limit("", nil, h.Logout))

	// Admin pages.
	mux.Handle("GET /admin", limit(ruleAdmin, limits.Admin, h.Admin))
	mux.Handle("POST /admin", limit(ruleAdmin, limits.Admin, h.AdminLogin))
	mux.Handle("GET /admin/export", limit(ruleExport, limits.Export, h.Export))
	mux.Handle("POST /admin/delete/{id}", limit(ruleDelete, limits.Delete, h.Delete))
	mux.Handle("GET /admin/logout", limit("", nil, h.AdminLogout))
}
