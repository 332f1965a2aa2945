// Command check runs every broad-phase method over the same scene and
// reports whether they agree with brute force, tick by tick.
//
//	go run ./cmd/check -fixture scenes/rain.txt -steps 300
//	go run ./cmd/check -bodies 2000 -seed 7 -save scene.msgpack -png last.png
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"slices"
	"strings"
	"time"

	"collide2d/internal/broadphase"
	"collide2d/internal/config"
	"collide2d/internal/fixture"
	"collide2d/internal/render"
	"collide2d/internal/world"
)

type checkConfig struct {
	Fixture string
	Bodies  int
	Seed    int64
	Width   float64
	Height  float64
	Steps   int
	TickHz  int
	Methods string
	Save    string
	PNG     string
}

type methodRun struct {
	kind   broadphase.Kind
	world  *world.World
	total  time.Duration
	tests  int64
	builds int
}

func main() {
	defaults := config.DefaultWorld()
	var cfg checkConfig
	flag.StringVar(&cfg.Fixture, "fixture", "", "fixture file (.txt or .msgpack) to load")
	flag.IntVar(&cfg.Bodies, "bodies", defaults.Bodies, "number of bodies for a generated scene")
	flag.Int64Var(&cfg.Seed, "seed", defaults.Seed, "RNG seed for a generated scene")
	flag.Float64Var(&cfg.Width, "width", defaults.Width, "world width")
	flag.Float64Var(&cfg.Height, "height", defaults.Height, "world height")
	flag.IntVar(&cfg.Steps, "steps", 120, "ticks to simulate")
	flag.IntVar(&cfg.TickHz, "tps", config.DefaultSimulation().TickRate, "ticks per second")
	flag.StringVar(&cfg.Methods, "methods", "", "comma separated methods (default: all)")
	flag.StringVar(&cfg.Save, "save", "", "write the initial scene to this fixture file")
	flag.StringVar(&cfg.PNG, "png", "", "render the final state to this PNG file")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}

func run(cfg checkConfig) error {
	if cfg.TickHz <= 0 {
		return fmt.Errorf("tps must be positive, got %d", cfg.TickHz)
	}
	if cfg.Steps < 0 {
		return fmt.Errorf("steps must not be negative, got %d", cfg.Steps)
	}
	specs, err := loadScene(cfg)
	if err != nil {
		return err
	}
	if cfg.Save != "" {
		if err := fixture.Save(cfg.Save, specs); err != nil {
			return err
		}
		log.Printf("💾 Saved %d shapes to %s", len(specs), cfg.Save)
	}

	kinds, err := parseMethods(cfg.Methods)
	if err != nil {
		return err
	}

	reference, err := newRun(broadphase.KindBruteForce, cfg, specs)
	if err != nil {
		return err
	}
	runs := make([]*methodRun, 0, len(kinds))
	for _, k := range kinds {
		if k == broadphase.KindBruteForce {
			continue
		}
		r, err := newRun(k, cfg, specs)
		if err != nil {
			return err
		}
		runs = append(runs, r)
	}

	log.Printf("🔍 Checking %d shapes over %d ticks", len(specs), cfg.Steps)
	dt := 1 / float64(cfg.TickHz)
	mismatches := 0
	for step := 0; step < cfg.Steps; step++ {
		want := broadphase.Keys(reference.step(dt).Pairs)
		for _, r := range runs {
			got := broadphase.Keys(r.step(dt).Pairs)
			if !slices.Equal(got, want) {
				mismatches++
				log.Printf("⚠️ tick %d: %s found %d pairs, brute force %d", step+1, r.kind, len(got), len(want))
			}
		}
	}

	fmt.Printf("%-12s %10s %14s %9s %12s\n", "method", "pairs", "tests", "rebuilds", "avg/tick")
	for _, r := range append([]*methodRun{reference}, runs...) {
		fmt.Printf("%-12s %10d %14d %9d %12s\n",
			r.kind, len(r.world.Last().Pairs), r.tests, r.builds,
			(r.total / time.Duration(max(cfg.Steps, 1))).Round(time.Microsecond))
	}

	if cfg.PNG != "" {
		if err := writePNG(cfg.PNG, reference.world); err != nil {
			return err
		}
		log.Printf("🖼️ Wrote %s", cfg.PNG)
	}

	if mismatches > 0 {
		return fmt.Errorf("%d method/tick results disagree with brute force", mismatches)
	}
	log.Println("✅ All methods agree")
	return nil
}

func newRun(kind broadphase.Kind, cfg checkConfig, specs []fixture.Spec) (*methodRun, error) {
	w, err := world.New(cfg.Width, cfg.Height, kind, broadphase.DefaultOptions())
	if err != nil {
		return nil, err
	}
	// Each world gets its own bodies since stepping moves them.
	w.SetBodies(fixture.Bodies(specs))
	return &methodRun{kind: kind, world: w}, nil
}

func (r *methodRun) step(dt float64) world.StepResult {
	res := r.world.Step(dt)
	r.total += res.Duration
	r.tests += res.Stats.Tests
	r.builds += res.Stats.Rebuilds
	return res
}

func loadScene(cfg checkConfig) ([]fixture.Spec, error) {
	if cfg.Fixture != "" {
		return fixture.Load(cfg.Fixture)
	}
	wc := config.DefaultWorld()
	rng := rand.New(rand.NewSource(cfg.Seed))
	bodies := world.Populate(rng, cfg.Width, cfg.Height, world.PopulateOptions{
		Count:     cfg.Bodies,
		MinRadius: wc.MinRadius,
		MaxRadius: wc.MaxRadius,
		MaxSpeed:  wc.MaxSpeed,
		BoxRatio:  wc.BoxRatio,
	})
	return fixture.FromBodies(bodies), nil
}

func parseMethods(s string) ([]broadphase.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return broadphase.Kinds, nil
	}
	var kinds []broadphase.Kind
	for _, name := range strings.Split(s, ",") {
		k, err := broadphase.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func writePNG(path string, w *world.World) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return render.NewRenderer(1280, 720).WritePNG(f, w.Snapshot())
}
