// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for world, broad-phase and server settings.
//
// Defaults live here; environment variables override them. All other parts
// of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig describes the simulated area and its initial population.
type WorldConfig struct {
	Width     float64 // World width in world units
	Height    float64 // World height in world units
	Bodies    int     // Bodies spawned at startup when no fixture is given
	MinRadius float64 // Smallest generated body radius / half extent
	MaxRadius float64 // Largest generated body radius / half extent
	MaxSpeed  float64 // Largest generated speed, units per second
	BoxRatio  float64 // Fraction of generated bodies that are boxes
	Seed      int64   // RNG seed for the generated scene (0 = time based)
	Fixture   string  // Optional fixture file loaded instead of a random scene
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:     1280,
		Height:    720,
		Bodies:    400,
		MinRadius: 3,
		MaxRadius: 12,
		MaxSpeed:  80,
		BoxRatio:  0.25,
		Seed:      1,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvFloat("WORLD_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvFloat("WORLD_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if n := getEnvInt("WORLD_BODIES", -1); n >= 0 {
		cfg.Bodies = n
	}
	if r := getEnvFloat("WORLD_MIN_RADIUS", 0); r > 0 {
		cfg.MinRadius = r
	}
	if r := getEnvFloat("WORLD_MAX_RADIUS", 0); r > 0 {
		cfg.MaxRadius = r
	}
	if v := getEnvFloat("WORLD_MAX_SPEED", -1); v >= 0 {
		cfg.MaxSpeed = v
	}
	if r := getEnvFloat("WORLD_BOX_RATIO", -1); r >= 0 && r <= 1 {
		cfg.BoxRatio = r
	}
	if s := os.Getenv("WORLD_SEED"); s != "" {
		if seed, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.Seed = seed
		}
	}
	if f := os.Getenv("WORLD_FIXTURE"); f != "" {
		cfg.Fixture = f
	}
	if cfg.MaxRadius < cfg.MinRadius {
		cfg.MaxRadius = cfg.MinRadius
	}

	return cfg
}

// =============================================================================
// BROAD-PHASE CONFIGURATION
// =============================================================================

// BroadPhaseConfig selects and tunes the collision broad phase.
type BroadPhaseConfig struct {
	Method              string  // bruteforce | sap | sweep | spatialhash | quadtree
	QuadtreeMaxShapes   int     // Shapes per leaf before it splits
	QuadtreeMinNodeSize float64 // Leaves never split below this edge length
	CellSizeTolerance   float64 // Relative cell size drift before the hash rebuilds
	InsertionSort       bool    // Reuse last tick's order in sweep-and-prune
}

// DefaultBroadPhase returns the default broad-phase configuration.
func DefaultBroadPhase() BroadPhaseConfig {
	return BroadPhaseConfig{
		Method:              "sap",
		QuadtreeMaxShapes:   8,
		QuadtreeMinNodeSize: 4,
		CellSizeTolerance:   0.5,
		InsertionSort:       true,
	}
}

// BroadPhaseFromEnv returns broad-phase configuration with environment overrides.
// The method name is validated by the broadphase package, not here.
func BroadPhaseFromEnv() BroadPhaseConfig {
	cfg := DefaultBroadPhase()

	if m := strings.TrimSpace(os.Getenv("BROADPHASE_METHOD")); m != "" {
		cfg.Method = m
	}
	if n := getEnvInt("QUADTREE_MAX_SHAPES", 0); n > 0 {
		cfg.QuadtreeMaxShapes = n
	}
	if s := getEnvFloat("QUADTREE_MIN_NODE_SIZE", 0); s > 0 {
		cfg.QuadtreeMinNodeSize = s
	}
	if tol := getEnvFloat("CELL_SIZE_TOLERANCE", -1); tol >= 0 {
		cfg.CellSizeTolerance = tol
	}
	if os.Getenv("SAP_INSERTION_SORT") == "false" {
		cfg.InsertionSort = false
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig controls the tick loop and its resource limits.
type SimulationConfig struct {
	TickRate  int    // Ticks per second
	MaxBodies int    // Hard cap on bodies accepted through the API
	PairLog   string // Optional JSONL file receiving pair began/ended events
}

// DefaultSimulation returns the default simulation configuration.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		TickRate:  30,
		MaxBodies: 20_000,
	}
}

// SimulationFromEnv returns simulation configuration with environment overrides.
func SimulationFromEnv() SimulationConfig {
	cfg := DefaultSimulation()

	if tps := getEnvInt("TICK_RATE", 0); tps > 0 {
		cfg.TickRate = tps
	}
	if mb := getEnvInt("MAX_BODIES", 0); mb > 0 {
		cfg.MaxBodies = mb
	}
	if p := os.Getenv("PAIR_LOG"); p != "" {
		cfg.PairLog = p
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	DebugAddr      string   // pprof + /metrics, keep on localhost
	AllowedOrigins []string // CORS and WebSocket origin allow-list
	RateLimit      float64  // Requests per second per IP
	RateBurst      int
	AdminToken     string // Bearer token for mutating routes, empty = open
	DebugUser      string // Optional basic auth on the debug server
	DebugPass      string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      3000,
		DebugAddr: "localhost:6060",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		RateLimit: 20,
		RateBurst: 40,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if a := os.Getenv("DEBUG_ADDR"); a != "" {
		cfg.DebugAddr = a
	}
	if o := os.Getenv("ALLOWED_ORIGINS"); o != "" {
		cfg.AllowedOrigins = splitList(o)
	}
	if r := getEnvFloat("RATE_LIMIT", 0); r > 0 {
		cfg.RateLimit = r
	}
	if b := getEnvInt("RATE_BURST", 0); b > 0 {
		cfg.RateBurst = b
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.DebugUser = os.Getenv("DEBUG_USER")
	cfg.DebugPass = os.Getenv("DEBUG_PASS")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World      WorldConfig
	BroadPhase BroadPhaseConfig
	Simulation SimulationConfig
	Server     ServerConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:      WorldFromEnv(),
		BroadPhase: BroadPhaseFromEnv(),
		Simulation: SimulationFromEnv(),
		Server:     ServerFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
