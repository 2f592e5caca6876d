package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Actions
	mux.Handle("POST /api/v1/actions", chain(http.HandlerFunc(h.ScheduleAction)))
	mux.Handle("GET /api/v1/actions", chain(http.HandlerFunc(h.ListActions)))
	mux.Handle("GET /api/v1/actions/{id}", chain(http.HandlerFunc(h.GetAction)))
	mux.Handle("POST /api/v1/actions/{id}/cancel", chain(http.HandlerFunc(h.CancelAction)))

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("GET /api/v1/jobs/{id}/attempts", chain(http.HandlerFunc(h.ListJobAttempts)))

	// Automation rules
	mux.Handle("POST /api/v1/rules", chain(http.HandlerFunc(h.CreateRule)))
	mux.Handle("GET /api/v1/rules", chain(http.HandlerFunc(h.ListRules)))
	mux.Handle("GET /api/v1/rules/{id}", chain(http.HandlerFunc(h.GetRule)))
	mux.Handle("PUT /api/v1/rules/{id}/enabled", chain(http.HandlerFunc(h.SetRuleEnabled)))
}
