package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/media-platform/internal/platform/api"
	"github.com/example/media-platform/internal/platform/httpserver"
	"github.com/example/media-platform/services/refresher/internal/domain"
)

type CollectionReader interface {
	GetCollection(ctx context.Context, category domain.RefreshCategory) (domain.Collection, error)
}

// GetCollection handles GET /v1/collections/{category}
func GetCollection(store CollectionReader, cache *TTLCache, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		category, err := domain.ParseCategory(chi.URLParam(r, "category"))
		if err != nil {
			api.BadRequest(w, "UNKNOWN_CATEGORY", err.Error(), rid, nil)
			return
		}

		key := collectionKey(string(category))
		if cache != nil {
			if v, ok := cache.Get(key); ok {
				w.Header().Set("X-Cache", "HIT")
				api.WriteJSON(w, http.StatusOK, v)
				return
			}
		}

		c, err := store.GetCollection(r.Context(), category)
		if err != nil {
			log.Error("read collection failed", zap.String("category", string(category)), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if cache != nil {
			cache.Set(key, c)
		}
		w.Header().Set("X-Cache", "MISS")
		api.WriteJSON(w, http.StatusOK, c)
	}
}
