package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	pathStatic = "static"
	pathLine   = "line"
	pathOrbit  = "orbit"
)

// scriptedPath moves the observer when no client drives it.
type scriptedPath struct {
	kind   string
	origin mgl32.Vec3
	speed  float32
}

func newScriptedPath(kind string, origin mgl32.Vec3, speed float32) (scriptedPath, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case pathStatic, pathLine, pathOrbit:
	default:
		return scriptedPath{}, fmt.Errorf("unknown path %q", kind)
	}
	if speed < 0 {
		return scriptedPath{}, fmt.Errorf("negative speed %v", speed)
	}
	return scriptedPath{kind: kind, origin: origin, speed: speed}, nil
}

// At returns the observer position after elapsed seconds.
func (p scriptedPath) At(elapsed float64) mgl32.Vec3 {
	d := float32(elapsed) * p.speed
	switch p.kind {
	case pathLine:
		return p.origin.Add(mgl32.Vec3{d, 0, 0})
	case pathOrbit:
		const r = 256
		a := float64(d / r)
		return p.origin.Add(mgl32.Vec3{r * float32(math.Cos(a)), 0, r * float32(math.Sin(a))})
	default:
		return p.origin
	}
}

type sessionCounter interface {
	Sessions() int
}

func driveScripted(ctx context.Context, p scriptedPath, rateHz int, obs sessionCounter, moves chan mgl32.Vec3) {
	if rateHz <= 0 {
		rateHz = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(rateHz))
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if obs != nil && obs.Sessions() > 0 {
				continue
			}
			pos := p.At(now.Sub(start).Seconds())
			select {
			case moves <- pos:
			default:
				select {
				case <-moves:
				default:
				}
				select {
				case moves <- pos:
				default:
				}
			}
		}
	}
}

func parseVec3(s string) (mgl32.Vec3, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return mgl32.Vec3{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}
