package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// ListJobs обрабатывает GET /api/v1/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		BadRequest(w, "tenant_id query parameter is required")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	jobs, err := h.jobRepo.ListByTenant(r.Context(), tenantID, limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, toJobResponses(jobs), len(jobs))
}

// GetJob обрабатывает GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, toJobResponse(job))
}

// ListJobAttempts обрабатывает GET /api/v1/jobs/{id}/attempts.
func (h *Handler) ListJobAttempts(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	// Проверяем, что job существует: пустая история и несуществующий
	// job — разные ответы.
	if _, err := h.jobRepo.GetByID(r.Context(), id); HandleError(w, h.logger, err, "job not found") {
		return
	}

	attempts, err := h.jobRepo.ListAttempts(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, toAttemptResponses(attempts), len(attempts))
}
