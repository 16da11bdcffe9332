package clipmap

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sphere is a world-space streaming volume. A sphere with a non-positive radius is
// empty and intersects nothing.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (s Sphere) Empty() bool { return s.Radius <= 0 }

// IntersectsBox uses the closest-point test: the box touches the sphere when the
// distance from the centre to the nearest point of the box is at most the radius.
func (s Sphere) IntersectsBox(min, max mgl32.Vec3) bool {
	if s.Empty() {
		return false
	}
	var d2 float64
	for i := 0; i < 3; i++ {
		c := float64(s.Center[i])
		lo, hi := float64(min[i]), float64(max[i])
		var d float64
		if c < lo {
			d = lo - c
		} else if c > hi {
			d = c - hi
		}
		d2 += d * d
	}
	r := float64(s.Radius)
	return d2 <= r*r
}

// ClipSpheres holds the streaming sphere of the previous and current frame.
type ClipSpheres struct {
	Old Sphere
	New Sphere
}

// Advance shifts New into Old and installs next as the current sphere.
func (c *ClipSpheres) Advance(next Sphere) {
	c.Old = c.New
	c.New = next
}

func distance(a, b mgl32.Vec3) float64 {
	dx := float64(a[0] - b[0])
	dy := float64(a[1] - b[1])
	dz := float64(a[2] - b[2])
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
