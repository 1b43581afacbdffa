// Package handlers exposes the published collections, the weekly challenge
// and the refresh triggers over HTTP.
package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/media-platform/internal/platform/auth"
)

type Deps struct {
	Collections CollectionReader
	Challenges  ChallengeStore
	Runner      Runner
	Cache       *TTLCache
	Loc         *time.Location
	Log         *zap.Logger
	Now         func() time.Time

	// Verifier guards the refresh triggers. When nil the triggers are not
	// mounted.
	Verifier *auth.JWTVerifier
}

// Mount registers every route on r. httpserver.SetupRouter must run first.
func Mount(r chi.Router, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Loc == nil {
		d.Loc = time.UTC
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/collections/{category}", GetCollection(d.Collections, d.Cache, d.Log))

		r.Get("/challenges/current", GetCurrentChallenge(d.Challenges, d.Loc, d.Now, d.Log))
		r.Get("/challenges/{week_id}", GetChallenge(d.Challenges, d.Log))
		r.Patch("/challenges/{week_id}", PatchChallengeStatus(d.Challenges, d.Now, d.Log))
		r.Patch("/challenges/{week_id}/steps/{index}", PatchChallengeStep(d.Challenges, d.Now, d.Log))

		if d.Verifier != nil && d.Runner != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireBearer(*d.Verifier))
				r.Use(auth.RequireRole(auth.RoleScheduler))
				r.Post("/refresh/dispatch", TriggerDispatch(d.Runner, d.Now))
				r.Post("/refresh/{category}", TriggerRefresh(d.Runner))
			})
		} else {
			d.Log.Info("TRIGGER_JWT_SECRET not set, refresh triggers are not mounted")
		}
	})
}
