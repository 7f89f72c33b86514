package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/config"
	"github.com/ShivangSharma3/bus-tracking-system/internal/db"
	"github.com/ShivangSharma3/bus-tracking-system/internal/route"
	"github.com/ShivangSharma3/bus-tracking-system/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	loadRoutes      func(string) (*route.Model, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, *route.Model, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		loadRoutes:      route.Load,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	routes, err := deps.loadRoutes(cfg.RoutesFile)
	if err != nil {
		// The API still serves raw positions when route definitions are
		// missing; stop names and progress just stay empty.
		log.Printf("route definitions not loaded: %v", err)
		routes = route.New(nil)
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, routes, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, routes *route.Model, signals <-chan os.Signal, listen ListenFunc) error {
	srv := newServer(cfg, pg, rdb, routes)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}

func newServer(cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, routes *route.Model) *server.Server {
	// A typed nil pool must not leak into the Querier interface.
	if pg == nil {
		return server.NewServer(cfg, nil, rdb, routes)
	}
	return server.NewServer(cfg, pg, rdb, routes)
}
