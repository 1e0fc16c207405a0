package server

import (
	"log/slog"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/config"
	"backend-runtracker/internal/handoff"
	"backend-runtracker/internal/location"
	"backend-runtracker/internal/location/redisfeed"
	"backend-runtracker/internal/stream"
	"backend-runtracker/internal/tracking"
	"backend-runtracker/internal/workout"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Runs   *tracking.Service
	Logger *slog.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, stream.WithLogger(log)),
		Logger: log,
	}
	s.Runs = tracking.NewService(s.devices(), s.runOptions()...)

	registerRoutes(s)
	return s
}

// devices feeds sessions from Redis when it is configured, and from an
// in-memory simulator per runner otherwise.
func (s *Server) devices() tracking.DeviceFactory {
	if s.Redis == nil {
		s.Logger.Warn("redis not configured, runs use simulated location devices")
		return func(string) tracking.Device { return location.NewSimulator() }
	}
	rdb := s.Redis
	return func(runnerID string) tracking.Device {
		return redisfeed.New(rdb, runnerID, redisfeed.WithLogger(s.Logger))
	}
}

func (s *Server) runOptions() []tracking.ServiceOption {
	background := location.DefaultBackground
	if s.Cfg.BackgroundBatch > 0 {
		background.BatchSize = s.Cfg.BackgroundBatch
	}
	idle := location.DefaultIdle
	if s.Cfg.IdleWatchInterval > 0 {
		idle.Interval = s.Cfg.IdleWatchInterval
	}

	opts := []tracking.ServiceOption{
		tracking.WithServiceLogger(s.Logger),
		tracking.WithBroadcaster(s.Stream),
		tracking.WithSessionOptions(
			tracking.WithTickInterval(s.Cfg.TickInterval),
			tracking.WithSampleBuffer(s.Cfg.SampleBuffer),
			tracking.WithDefaultStepDuration(s.Cfg.DefaultStepSeconds),
		),
		tracking.WithSourceOptions(
			location.WithBackground(background),
			location.WithIdle(idle),
		),
	}
	if s.DB != nil {
		opts = append(opts, tracking.WithPlans(workout.NewPlanStore(s.DB)))
	}
	if s.Redis != nil {
		opts = append(opts, tracking.WithSink(handoff.NewRedisSink(s.Redis)))
	}
	return opts
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret))
	tracking.RegisterRoutes(s.App.Group("/runs"), s.Runs, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close ends live sessions and the stream bridge.
func (s *Server) Close() {
	s.Runs.Close()
	s.Stream.Close()
}
