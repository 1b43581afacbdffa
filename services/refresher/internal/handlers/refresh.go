package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/media-platform/internal/platform/api"
	"github.com/example/media-platform/internal/platform/httpserver"
	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/jobs"
)

type Runner interface {
	Run(ctx context.Context, category domain.RefreshCategory) jobs.Result
	Dispatch(ctx context.Context, now time.Time) jobs.Result
}

type refreshResponse struct {
	Category string `json:"category"`
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Summary  string `json:"summary,omitempty"`
}

// TriggerRefresh handles POST /v1/refresh/{category}
func TriggerRefresh(runner Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		category, err := domain.ParseCategory(chi.URLParam(r, "category"))
		if err != nil {
			api.BadRequest(w, "UNKNOWN_CATEGORY", err.Error(), rid, nil)
			return
		}
		writeResult(w, rid, runner.Run(r.Context(), category))
	}
}

// TriggerDispatch handles POST /v1/refresh/dispatch
func TriggerDispatch(runner Runner, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		writeResult(w, rid, runner.Dispatch(r.Context(), now()))
	}
}

func writeResult(w http.ResponseWriter, rid string, res jobs.Result) {
	if res.Status == jobs.StatusFailed {
		api.BadGateway(w, "REFRESH_FAILED", res.Error(), rid, map[string]any{
			"category": string(res.Category),
			"run_id":   res.RunID,
		})
		return
	}
	api.WriteJSON(w, http.StatusOK, refreshResponse{
		Category: string(res.Category),
		RunID:    res.RunID,
		Status:   string(res.Status),
		Summary:  res.Summary,
	})
}
