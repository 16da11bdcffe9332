package gen

import (
	"math"

	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/clipmap"
)

// NoiseConfig parameterises the terrain density field.
type NoiseConfig struct {
	Freq    float64 `yaml:"freq" json:"freq"`
	Scale   float64 `yaml:"scale" json:"scale"`
	Seed    int64   `yaml:"seed" json:"seed"`
	Octaves int     `yaml:"octaves" json:"octaves"`

	// SurfaceY and HeightFalloff add HeightFalloff*(y-SurfaceY) to the density.
	// A zero falloff gives pure 3-D noise.
	SurfaceY      float64 `yaml:"surface_y" json:"surface_y"`
	HeightFalloff float64 `yaml:"height_falloff" json:"height_falloff"`
}

var gradients = [12][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
}

func grad(seed int64, ix, iy, iz int, dx, dy, dz float64) float64 {
	g := gradients[mathx.Hash3(seed, ix, iy, iz)%12]
	return g[0]*dx + g[1]*dy + g[2]*dz
}

// Perlin3 is gradient noise in roughly [-1, 1], zero on integer lattice points.
func Perlin3(seed int64, x, y, z float64) float64 {
	fx, fy, fz := math.Floor(x), math.Floor(y), math.Floor(z)
	ix, iy, iz := int(fx), int(fy), int(fz)
	dx, dy, dz := x-fx, y-fy, z-fz
	u, v, w := mathx.Fade(dx), mathx.Fade(dy), mathx.Fade(dz)

	n000 := grad(seed, ix, iy, iz, dx, dy, dz)
	n100 := grad(seed, ix+1, iy, iz, dx-1, dy, dz)
	n010 := grad(seed, ix, iy+1, iz, dx, dy-1, dz)
	n110 := grad(seed, ix+1, iy+1, iz, dx-1, dy-1, dz)
	n001 := grad(seed, ix, iy, iz+1, dx, dy, dz-1)
	n101 := grad(seed, ix+1, iy, iz+1, dx-1, dy, dz-1)
	n011 := grad(seed, ix, iy+1, iz+1, dx, dy-1, dz-1)
	n111 := grad(seed, ix+1, iy+1, iz+1, dx-1, dy-1, dz-1)

	x00 := mathx.Lerp(n000, n100, u)
	x10 := mathx.Lerp(n010, n110, u)
	x01 := mathx.Lerp(n001, n101, u)
	x11 := mathx.Lerp(n011, n111, u)
	return mathx.Lerp(mathx.Lerp(x00, x10, v), mathx.Lerp(x01, x11, v), w)
}

// FBM sums octaves of Perlin3 with lacunarity 2 and gain 0.5.
func FBM(seed int64, octaves int, x, y, z float64) float64 {
	var sum float64
	amp, f := 1.0, 1.0
	for o := 0; o < octaves; o++ {
		sum += amp * Perlin3(seed+int64(o), x*f, y*f, z*f)
		amp *= 0.5
		f *= 2
	}
	return sum
}

// Density evaluates the field at a world position.
func Density(cfg NoiseConfig, x, y, z float64) float64 {
	d := cfg.Scale * FBM(cfg.Seed, cfg.Octaves, x*cfg.Freq, y*cfg.Freq, z*cfg.Freq)
	if cfg.HeightFalloff != 0 {
		d += cfg.HeightFalloff * (y - cfg.SurfaceY)
	}
	return d
}

// Chunk samples the field at every voxel of key. In subsurface-only mode it
// returns nil unless at least one sample is solid.
func Chunk(cfg NoiseConfig, ix clipmap.Indexer, key clipmap.ChunkKey, subsurfaceOnly bool) []float32 {
	edge := int(ix.Edge())
	step := float64(int64(1) << key.LOD)
	min := ix.WorldMin(key)
	out := make([]float32, edge*edge*edge)
	solid := false
	i := 0
	for z := 0; z < edge; z++ {
		wz := float64(min[2]) + float64(z)*step
		for y := 0; y < edge; y++ {
			wy := float64(min[1]) + float64(y)*step
			for x := 0; x < edge; x++ {
				wx := float64(min[0]) + float64(x)*step
				v := float32(Density(cfg, wx, wy, wz))
				if v < 0 {
					solid = true
				}
				out[i] = v
				i++
			}
		}
	}
	if subsurfaceOnly && !solid {
		return nil
	}
	return out
}
