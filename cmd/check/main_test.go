package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"collide2d/internal/broadphase"
	"collide2d/internal/fixture"
)

func TestParseMethods(t *testing.T) {
	kinds, err := parseMethods("")
	if err != nil || len(kinds) != len(broadphase.Kinds) {
		t.Fatalf("default = %v, %v", kinds, err)
	}
	kinds, err = parseMethods("SAP, quadtree")
	if err != nil || len(kinds) != 2 || kinds[1] != broadphase.KindQuadtree {
		t.Errorf("parsed = %v, %v", kinds, err)
	}
	if _, err := parseMethods("sap,octree"); !errors.Is(err, broadphase.ErrUnknownMethod) {
		t.Errorf("err = %v", err)
	}
}

func TestRunGeneratedScene(t *testing.T) {
	dir := t.TempDir()
	cfg := checkConfig{
		Bodies: 150,
		Seed:   3,
		Width:  400,
		Height: 300,
		Steps:  20,
		TickHz: 30,
		Save:   filepath.Join(dir, "scene.msgpack"),
		PNG:    filepath.Join(dir, "last.png"),
	}
	if err := run(cfg); err != nil {
		t.Fatalf("run: %v", err)
	}

	specs, err := fixture.Load(cfg.Save)
	if err != nil {
		t.Fatalf("saved scene: %v", err)
	}
	if len(specs) != 150 {
		t.Errorf("saved %d shapes", len(specs))
	}
	if info, err := os.Stat(cfg.PNG); err != nil || info.Size() == 0 {
		t.Errorf("png: %v", err)
	}

	// The saved scene replays through the fixture path.
	cfg.Fixture, cfg.Save, cfg.PNG = cfg.Save, "", ""
	if err := run(cfg); err != nil {
		t.Fatalf("replay: %v", err)
	}
}

func TestRunRejectsBadTiming(t *testing.T) {
	base := checkConfig{Bodies: 10, Seed: 1, Width: 100, Height: 100, Steps: 5, TickHz: 30}
	tests := []struct {
		name   string
		tickHz int
		steps  int
	}{
		{"zero tps", 0, 5},
		{"negative tps", -30, 5},
		{"negative steps", 30, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.TickHz, cfg.Steps = tt.tickHz, tt.steps
			if err := run(cfg); err == nil {
				t.Errorf("run(%+v) succeeded", cfg)
			}
		})
	}
}
