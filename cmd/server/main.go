package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"collide2d/internal/api"
	"collide2d/internal/broadphase"
	"collide2d/internal/config"
	"collide2d/internal/fixture"
	"collide2d/internal/render"
	"collide2d/internal/world"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	} else {
		log.Println("✅ Loaded environment from .env")
	}

	log.Println("🎯 ================================")
	log.Println("🎯  COLLIDE2D - BROAD PHASE ENGINE")
	log.Println("🎯 ================================")

	appConfig := config.Load()
	worldCfg := appConfig.World
	bpCfg := appConfig.BroadPhase
	simCfg := appConfig.Simulation
	serverCfg := appConfig.Server

	kind, err := broadphase.ParseKind(bpCfg.Method)
	if err != nil {
		log.Fatalf("❌ %v (available: %v)", err, broadphase.Kinds)
	}
	opts := broadphase.Options{
		QuadtreeMaxShapes:   bpCfg.QuadtreeMaxShapes,
		QuadtreeMinNodeSize: bpCfg.QuadtreeMinNodeSize,
		CellSizeTolerance:   bpCfg.CellSizeTolerance,
		InsertionSort:       bpCfg.InsertionSort,
	}

	w, err := world.New(worldCfg.Width, worldCfg.Height, kind, opts)
	if err != nil {
		log.Fatalf("❌ Failed to create world: %v", err)
	}
	w.SetBodies(initialBodies(worldCfg))
	log.Printf("🌍 World %vx%v, %d bodies, method %s", worldCfg.Width, worldCfg.Height, w.Len(), kind)

	engine := world.NewEngine(w, world.EngineConfig{
		TickRate: simCfg.TickRate,
		Limits:   world.Limits{MaxBodies: simCfg.MaxBodies},
	})
	engine.SetRecorder(api.PrometheusRecorder{})
	log.Printf("🛡️ Resource limits: %d bodies", engine.Limits().MaxBodies)

	var pairLog *world.PairLog
	if simCfg.PairLog != "" {
		pairLog = world.NewPairLog()
		if err := pairLog.Start(simCfg.PairLog); err != nil {
			log.Printf("⚠️ Pair log disabled: %v", err)
			pairLog = nil
		} else {
			engine.SetPairLog(pairLog)
			log.Printf("📝 Pair log: %s", simCfg.PairLog)
		}
	}

	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		debugCfg := api.DefaultObservabilityConfig()
		debugCfg.ListenAddr = serverCfg.DebugAddr
		debugCfg.AllowExternal = os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true"
		debugCfg.BasicAuthUser = serverCfg.DebugUser
		debugCfg.BasicAuthPass = serverCfg.DebugPass
		api.StartDebugServer(debugCfg)
	}

	if serverCfg.AdminToken == "" {
		log.Println("⚠️ ADMIN_TOKEN not set - mutating routes are open")
	} else {
		log.Println("🔐 Admin token required for mutating routes")
	}

	server := api.NewServer(engine, api.ServerOptions{
		Origins: serverCfg.AllowedOrigins,
		RateLimit: &api.RateLimitConfig{
			RequestsPerSecond: serverCfg.RateLimit,
			Burst:             serverCfg.RateBurst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
		AdminToken: serverCfg.AdminToken,
		Renderer:   render.NewRenderer(1280, 720),
	})

	engine.Start()

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 API: http://localhost%s/api/stats", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	engine.Stop()
	if pairLog != nil {
		pairLog.Stop()
	}
	log.Println("👋 Goodbye!")
}

// initialBodies loads the configured fixture, or generates a random scene.
func initialBodies(cfg config.WorldConfig) []*world.Body {
	if cfg.Fixture != "" {
		specs, err := fixture.Load(cfg.Fixture)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		log.Printf("📂 Loaded %d shapes from %s", len(specs), cfg.Fixture)
		return fixture.Bodies(specs)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	log.Printf("🎲 Generating %d bodies (seed %d)", cfg.Bodies, seed)
	return world.Populate(rng, cfg.Width, cfg.Height, world.PopulateOptions{
		Count:     cfg.Bodies,
		MinRadius: cfg.MinRadius,
		MaxRadius: cfg.MaxRadius,
		MaxSpeed:  cfg.MaxSpeed,
		BoxRatio:  cfg.BoxRatio,
	})
}
