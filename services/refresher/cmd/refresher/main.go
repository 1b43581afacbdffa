package main

import (
	"context"
	"net"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/media-platform/internal/platform/auth"
	"github.com/example/media-platform/internal/platform/config"
	"github.com/example/media-platform/internal/platform/db"
	"github.com/example/media-platform/internal/platform/events"
	"github.com/example/media-platform/internal/platform/httpserver"
	"github.com/example/media-platform/internal/platform/logging"
	"github.com/example/media-platform/internal/platform/natsconn"
	"github.com/example/media-platform/internal/platform/run"
	refresherconfig "github.com/example/media-platform/services/refresher/internal/config"
	"github.com/example/media-platform/services/refresher/internal/enrich"
	"github.com/example/media-platform/services/refresher/internal/genai"
	"github.com/example/media-platform/services/refresher/internal/handlers"
	"github.com/example/media-platform/services/refresher/internal/jobs"
	"github.com/example/media-platform/services/refresher/internal/lock"
	"github.com/example/media-platform/services/refresher/internal/publisher"
	"github.com/example/media-platform/services/refresher/internal/resolver"
	"github.com/example/media-platform/services/refresher/internal/schedule"
	"github.com/example/media-platform/services/refresher/internal/staleness"
	"github.com/example/media-platform/services/refresher/internal/store"
	"github.com/example/media-platform/services/refresher/internal/suggest"
	"github.com/example/media-platform/services/refresher/internal/throttle"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

func main() {
	appCfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(appCfg.LogLevel)
	if err != nil {
		panic(err)
	}
	log = logging.ForService(log, appCfg.ServiceName, appCfg.Env)

	code := serve(appCfg, log)
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

func serve(appCfg config.AppConfig, log *zap.Logger) int {
	cfg, err := refresherconfig.Load()
	if err != nil {
		log.Error("load refresher config", zap.Error(err))
		return 1
	}
	ctx := context.Background()

	var (
		st   store.Store
		pool *pgxpool.Pool
	)
	switch {
	case cfg.DatabaseURL != "":
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", zap.Error(err))
			return 1
		}
		defer pool.Close()
		if err := db.Exec(ctx, pool, store.Schema...); err != nil {
			log.Error("apply schema", zap.Error(err))
			return 1
		}
		st = store.NewPostgres(pool)
	case appCfg.IsProduction():
		log.Error("production requires DATABASE_URL; in-memory store is not allowed")
		return 1
	default:
		log.Warn("DATABASE_URL not set, using in-memory store (development only)")
		st = store.NewMemory()
	}

	locker, err := lock.NewLocker(cfg.RedisURL, pool, appCfg.IsProduction())
	if err != nil {
		log.Error("refresh lock", zap.Error(err))
		return 1
	}

	var (
		nc     *nats.Conn
		evConn events.Conn
	)
	if cfg.NATSURL != "" {
		nc, err = natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: appCfg.ServiceName, Logger: log})
		if err != nil {
			log.Error("nats", zap.Error(err))
			return 1
		}
		defer func() { _ = nc.Drain() }()
		evConn = nc
	} else {
		log.Warn("NATS_URL not set, publish notifications disabled (stub mode)")
	}

	queue := throttle.New(cfg.TMDBRequestDelay, throttle.WithLogger(log))
	queue.Start()
	defer queue.Stop()

	// A 404 is an answer, not an outage.
	tmdbCB := newBreaker("tmdb", cfg, log, func(err error) bool { return err == nil || tmdb.IsNotFound(err) })
	geminiCB := newBreaker("gemini", cfg, log, nil)

	tmdbClient := tmdb.New(cfg.TMDBBaseURL, tmdb.ClientConfig{
		APIKey:   cfg.TMDBAPIKey,
		Language: cfg.TMDBLanguage,
		Region:   cfg.TMDBRegion,
	}, tmdb.WithCircuitBreaker(tmdbCB), tmdb.WithLogger(log), tmdb.WithHTTPClient(&http.Client{Timeout: cfg.TMDBTimeout}))
	catalog := tmdb.NewThrottled(tmdbClient, queue, log)

	gen := genai.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel,
		genai.WithCircuitBreaker(geminiCB), genai.WithLogger(log), genai.WithTimeout(cfg.GeminiTimeout))

	cache := handlers.NewTTLCache(cfg.CollectionCacheTTL)
	notify := publisher.Notifiers{events.New(evConn, log), cache.Notifier()}

	runner := &jobs.Runner{
		Catalog:   catalog,
		Suggest:   suggest.New(gen, log, cfg.TimeZone),
		Enrich:    enrich.New(resolver.New(catalog, log), catalog, log),
		Staleness: staleness.New(st, cfg.TimeZone),
		Publisher: publisher.New(st, notify, log, cfg.EmptyPolicy),
		Store:     st,
		Locker:    locker,
		LockTTL:   cfg.LockTTL,
		Loc:       cfg.TimeZone,
		Log:       log,
	}

	rn := run.New(log)
	if cfg.RunMode == refresherconfig.ModeOnce {
		return rn.Once(func(ctx context.Context) error {
			res := runner.Dispatch(ctx, time.Now())
			if res.Status == jobs.StatusFailed {
				return res.Err
			}
			return nil
		})
	}

	if nc != nil {
		if err := cache.SubscribeInvalidation(nc, events.SubjectRefreshPublished, log); err != nil {
			log.Warn("cache invalidation subscribe failed", zap.Error(err))
		}
	}

	var verifier *auth.JWTVerifier
	if cfg.TriggerJWTSecret != "" {
		verifier = &auth.JWTVerifier{Secret: []byte(cfg.TriggerJWTSecret)}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: func() error {
		c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return st.Ping(c)
	}})
	handlers.Mount(r, handlers.Deps{
		Collections: st,
		Challenges:  st,
		Runner:      runner,
		Cache:       cache,
		Loc:         cfg.TimeZone,
		Log:         log,
		Verifier:    verifier,
	})
	srv := httpserver.New(httpserver.Options{Addr: appCfg.HTTP.Addr, ServiceName: appCfg.ServiceName, Logger: log, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		return 1
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	loop := schedule.New(runner, cfg.ScheduleTick, log)
	loopDone := make(chan struct{})

	code := rn.WithSignals(func(ctx context.Context) error {
		go func() {
			log.Info("grpc health server starting", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				log.Error("grpc serve", zap.Error(err))
			}
		}()
		go func() {
			_ = loop.Run(ctx)
			close(loopDone)
		}()
		return srv.Start(log)
	})

	healthSrv.Shutdown()
	rn.Graceful(srv.Shutdown)
	rn.Graceful(func(ctx context.Context) error {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
		select {
		case <-loopDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return code
}

func newBreaker(name string, cfg refresherconfig.Config, log *zap.Logger, isSuccessful func(error) bool) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CBFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		IsSuccessful: isSuccessful,
	})
}
