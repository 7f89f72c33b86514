package server

import (
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/archive"
	"github.com/ShivangSharma3/bus-tracking-system/internal/auth"
	"github.com/ShivangSharma3/bus-tracking-system/internal/config"
	"github.com/ShivangSharma3/bus-tracking-system/internal/db"
	"github.com/ShivangSharma3/bus-tracking-system/internal/reader"
	"github.com/ShivangSharma3/bus-tracking-system/internal/route"
	"github.com/ShivangSharma3/bus-tracking-system/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Querier
	Redis  *redis.Client
	Stream *stream.Hub
	Routes *route.Model
}

func NewServer(cfg config.Config, q db.Querier, redisClient *redis.Client, routes *route.Model) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     q,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
		Routes: routes,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	staleAfter := time.Duration(s.Cfg.StaleThresholdMS) * time.Millisecond
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}

	svc := archive.NewService(s.DB)
	rdr := reader.New(svc, s.Routes, staleAfter)
	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	archive.RegisterRoutes(s.App.Group("/api/location"), svc, rdr, s.Stream, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
