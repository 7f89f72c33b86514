package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/auth"
	"github.com/ShivangSharma3/bus-tracking-system/internal/backendsync"
	"github.com/ShivangSharma3/bus-tracking-system/internal/config"
	"github.com/ShivangSharma3/bus-tracking-system/internal/db"
	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
	"github.com/ShivangSharma3/bus-tracking-system/internal/route"
	"github.com/ShivangSharma3/bus-tracking-system/internal/sampler"
	"github.com/ShivangSharma3/bus-tracking-system/internal/store"
	"github.com/ShivangSharma3/bus-tracking-system/internal/supervisor"
)

var mainRunner = realMain

func main() {
	mainRunner()
}

func realMain() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := config.Load()

	if cfg.AgentBusID == "" || cfg.AgentDriverName == "" {
		log.Fatal("agent: AGENT_BUS_ID and AGENT_DRIVER_NAME are required")
	}

	rdb := db.ConnectRedis(cfg)
	if rdb == nil {
		log.Fatal("agent: REDIS_ADDR is required")
	}
	defer rdb.Close()

	routes, err := route.Load(cfg.RoutesFile)
	if err != nil {
		log.Printf("agent: route definitions not loaded: %v", err)
		routes = route.New(nil)
	}

	token, err := auth.Sign(cfg.JWTSecret, cfg.AgentDriverID, cfg.AgentBusID)
	if err != nil {
		log.Printf("agent: token signing failed, backend pushes disabled: %v", err)
	}

	sup := supervisor.New(
		supervisor.Config{
			PrimaryInterval:     time.Duration(cfg.PrimaryIntervalMS) * time.Millisecond,
			PersistenceInterval: time.Duration(cfg.PersistenceIntervalMS) * time.Millisecond,
			HealthInterval:      time.Duration(cfg.HealthIntervalMS) * time.Millisecond,
			FixTimeout:          time.Duration(cfg.FixTimeoutMS) * time.Millisecond,
			FixMaxAge:           time.Duration(cfg.FixMaxAgeMS) * time.Millisecond,
		},
		sampler.NewCachedSampler(sampler.NewBridgeSampler(cfg.GPSBridgeURL)),
		routes,
		store.New(rdb),
		backendsync.New(cfg.BackendURL, token),
	)

	ctx := context.Background()
	session := model.TrackingSession{
		BusID:      cfg.AgentBusID,
		DriverID:   cfg.AgentDriverID,
		DriverName: cfg.AgentDriverName,
	}
	if err := sup.Start(ctx, session); err != nil {
		log.Fatalf("agent: start tracking: %v", err)
	}

	// SIGUSR1/SIGUSR2 stand in for the vehicle unit's sleep and wake events.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range signals {
		switch sig {
		case syscall.SIGUSR1:
			log.Printf("agent: suspend requested")
			sup.Suspend(ctx)
		case syscall.SIGUSR2:
			log.Printf("agent: resume requested")
			sup.Resume(ctx)
		default:
			log.Printf("agent: shutting down")
			sup.Stop(ctx)
			return
		}
	}
}
