package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/media-platform/internal/platform/api"
	"github.com/example/media-platform/internal/platform/httpserver"
	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/store"
)

type ChallengeStore interface {
	GetChallenge(ctx context.Context, weekID string) (domain.Challenge, error)
	UpdateChallenge(ctx context.Context, weekID string, mutate func(*domain.Challenge) error) (domain.Challenge, error)
}

// GetCurrentChallenge handles GET /v1/challenges/current
func GetCurrentChallenge(s ChallengeStore, loc *time.Location, now func() time.Time, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeChallenge(w, r, s, domain.WeekID(now(), loc), log)
	}
}

// GetChallenge handles GET /v1/challenges/{week_id}
func GetChallenge(s ChallengeStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeChallenge(w, r, s, strings.TrimSpace(chi.URLParam(r, "week_id")), log)
	}
}

func writeChallenge(w http.ResponseWriter, r *http.Request, s ChallengeStore, weekID string, log *zap.Logger) {
	rid := httpserver.RequestIDFromContext(r.Context())
	c, err := s.GetChallenge(r.Context(), weekID)
	if err != nil {
		writeChallengeError(w, rid, weekID, err, log)
		return
	}
	api.WriteJSON(w, http.StatusOK, c)
}

type stepRequest struct {
	Completed *bool `json:"completed"`
}

// PatchChallengeStep handles PATCH /v1/challenges/{week_id}/steps/{index}
func PatchChallengeStep(s ChallengeStore, now func() time.Time, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		weekID := strings.TrimSpace(chi.URLParam(r, "week_id"))

		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			api.BadRequest(w, "INVALID_INDEX", "step index must be an integer", rid, nil)
			return
		}
		var req stepRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if req.Completed == nil {
			api.BadRequest(w, "MISSING_FIELD", "completed is required", rid, nil)
			return
		}

		c, err := s.UpdateChallenge(r.Context(), weekID, func(c *domain.Challenge) error {
			return c.SetStep(index, *req.Completed, now())
		})
		if err != nil {
			writeChallengeError(w, rid, weekID, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, c)
	}
}

type statusRequest struct {
	Status domain.ChallengeStatus `json:"status"`
}

// PatchChallengeStatus handles PATCH /v1/challenges/{week_id}
func PatchChallengeStatus(s ChallengeStore, now func() time.Time, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		weekID := strings.TrimSpace(chi.URLParam(r, "week_id"))

		var req statusRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if !req.Status.Valid() {
			api.BadRequest(w, "INVALID_STATUS", "status must be active, completed or lost", rid, nil)
			return
		}

		c, err := s.UpdateChallenge(r.Context(), weekID, func(c *domain.Challenge) error {
			return c.SetStatus(req.Status, now())
		})
		if err != nil {
			writeChallengeError(w, rid, weekID, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, c)
	}
}

func writeChallengeError(w http.ResponseWriter, rid, weekID string, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, store.ErrNoChallenge):
		api.NotFound(w, "CHALLENGE_NOT_FOUND", "no challenge for "+weekID, rid)
	case errors.Is(err, domain.ErrStepOutOfRange):
		api.BadRequest(w, "STEP_OUT_OF_RANGE", err.Error(), rid, nil)
	default:
		log.Error("challenge request failed", zap.String("week_id", weekID), zap.Error(err))
		api.Internal(w, rid)
	}
}
