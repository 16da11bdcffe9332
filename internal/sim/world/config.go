package world

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/render"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world/terrain/gen"
)

// MapConfig is fixed at startup; nothing here is hot-reloaded.
type MapConfig struct {
	ChunkExponent     uint8
	NumLODs           uint8
	Detail            float32
	GeneratorBudgetUs int
	MesherBudgetUs    int
	ClipRadius        float32
	DetectEnterLOD    uint8
	Workers           int
	SubsurfaceOnly    bool
	Mesher            string

	Noise     gen.NoiseConfig
	LODColors []render.Color

	// Origin is the observer position used by the setup scan.
	Origin mgl32.Vec3
}

func (c *MapConfig) applyDefaults() {
	if c.ChunkExponent == 0 {
		c.ChunkExponent = 4
	}
	if c.NumLODs == 0 {
		c.NumLODs = 10
	}
	if c.DetectEnterLOD >= c.NumLODs {
		c.DetectEnterLOD = c.NumLODs - 1
	}
	if c.Detail <= 0 {
		c.Detail = 6
	}
	if c.GeneratorBudgetUs <= 0 {
		c.GeneratorBudgetUs = 6000
	}
	if c.MesherBudgetUs <= 0 {
		c.MesherBudgetUs = 6000
	}
	if c.ClipRadius <= 0 {
		c.ClipRadius = 500
	}
	if c.Mesher == "" {
		c.Mesher = tuning.MesherSurfaceNets
	}
	if c.Noise.Octaves <= 0 {
		c.Noise.Octaves = 6
	}
	if len(c.LODColors) == 0 {
		for _, rgb := range tuning.DefaultLODColors() {
			c.LODColors = append(c.LODColors, render.RGB(rgb[0], rgb[1], rgb[2]))
		}
	}
}

// ConfigFromTuning maps the YAML tuning surface onto a MapConfig.
func ConfigFromTuning(t tuning.Tuning) MapConfig {
	cfg := MapConfig{
		ChunkExponent:     t.ChunkExponent,
		NumLODs:           t.NumLODs,
		Detail:            t.Detail,
		GeneratorBudgetUs: t.GeneratorBudgetUs,
		MesherBudgetUs:    t.MesherBudgetUs,
		ClipRadius:        t.ClipRadius,
		DetectEnterLOD:    t.DetectEnterLOD,
		Workers:           t.Workers,
		SubsurfaceOnly:    t.SubsurfaceOnly,
		Mesher:            t.Mesher,
		Noise:             t.Noise,
	}
	for _, rgb := range t.LODColors {
		cfg.LODColors = append(cfg.LODColors, render.RGB(rgb[0], rgb[1], rgb[2]))
	}
	return cfg
}
