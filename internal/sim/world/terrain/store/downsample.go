package store

// Downsample reduces eight children (octant order x | y<<1 | z<<2) into dst by
// averaging each 2x2x2 block. Missing or ambient children read as AmbientValue.
// When every child is ambient dst becomes ambient without allocating.
func Downsample(edge int, children [8]*Chunk, dst *Chunk) {
	allAmbient := true
	for _, c := range children {
		if c != nil && !c.Ambient {
			allAmbient = false
			break
		}
	}
	if allAmbient {
		dst.Ambient = true
		dst.Voxels = nil
		return
	}

	volume := edge * edge * edge
	dst.Ambient = false
	if cap(dst.Voxels) >= volume {
		dst.Voxels = dst.Voxels[:volume]
	} else {
		dst.Voxels = make([]float32, volume)
	}

	half := edge / 2
	for o, child := range children {
		ox, oy, oz := (o&1)*half, ((o>>1)&1)*half, ((o>>2)&1)*half
		for z := 0; z < half; z++ {
			for y := 0; y < half; y++ {
				for x := 0; x < half; x++ {
					var sum float32
					if child == nil || child.Ambient {
						sum = 8 * AmbientValue
					} else {
						sx, sy, sz := 2*x, 2*y, 2*z
						for dz := 0; dz < 2; dz++ {
							for dy := 0; dy < 2; dy++ {
								base := sx + edge*((sy+dy)+edge*(sz+dz))
								sum += child.Voxels[base] + child.Voxels[base+1]
							}
						}
					}
					dst.Voxels[(ox+x)+edge*((oy+y)+edge*(oz+z))] = sum / 8
				}
			}
		}
	}
}
