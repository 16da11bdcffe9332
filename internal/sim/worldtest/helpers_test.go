package worldtest

import (
	"voxelstream.ai/internal/sim/tuning"
	world "voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/gen"
)

func smallConfig(mesher string) world.MapConfig {
	return world.MapConfig{
		ChunkExponent:     3,
		NumLODs:           3,
		DetectEnterLOD:    2,
		Detail:            2,
		ClipRadius:        40,
		GeneratorBudgetUs: 20000,
		MesherBudgetUs:    20000,
		Workers:           2,
		Mesher:            mesher,
		Noise: gen.NoiseConfig{
			Freq:          0.1,
			Scale:         5,
			Seed:          1010,
			Octaves:       3,
			HeightFalloff: 0.2,
		},
	}
}

var bothMeshers = []string{tuning.MesherSurfaceNets, tuning.MesherBlocky}
