package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelstream.ai/internal/sim/world/terrain/gen"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	ChunkExponent     uint8   `yaml:"chunk_exponent" json:"chunk_exponent"`
	NumLODs           uint8   `yaml:"num_lods" json:"num_lods"`
	Detail            float32 `yaml:"detail" json:"detail"`
	GeneratorBudgetUs int     `yaml:"generator_budget_us" json:"generator_budget_us"`
	MesherBudgetUs    int     `yaml:"mesher_budget_us" json:"mesher_budget_us"`
	ClipRadius        float32 `yaml:"clip_radius" json:"clip_radius"`
	DetectEnterLOD    uint8   `yaml:"detect_enter_lod" json:"detect_enter_lod"`
	Workers           int     `yaml:"workers" json:"workers"`
	Mesher            string  `yaml:"mesher" json:"mesher"`
	SubsurfaceOnly    bool    `yaml:"subsurface_only" json:"subsurface_only"`

	Noise     gen.NoiseConfig `yaml:"noise" json:"noise"`
	LODColors [][3]float32    `yaml:"lod_colors" json:"lod_colors"`
}

const (
	MesherSurfaceNets = "surface_nets"
	MesherBlocky      = "blocky"
)

func Defaults() Tuning {
	return Tuning{
		ChunkExponent:     4,
		NumLODs:           10,
		Detail:            6,
		GeneratorBudgetUs: 6000,
		MesherBudgetUs:    6000,
		ClipRadius:        500,
		DetectEnterLOD:    4,
		Mesher:            MesherSurfaceNets,
		Noise: gen.NoiseConfig{
			Freq:    0.25,
			Scale:   5,
			Seed:    1010,
			Octaves: 6,
		},
		LODColors: DefaultLODColors(),
	}
}

func DefaultLODColors() [][3]float32 {
	return [][3]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 0},
		{0, 1, 1},
		{1, 0, 1},
	}
}

// Normalize fills unset fields with defaults and clamps the LOD layout.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ChunkExponent == 0 {
		t.ChunkExponent = d.ChunkExponent
	}
	if t.NumLODs == 0 {
		t.NumLODs = d.NumLODs
	}
	if t.DetectEnterLOD >= t.NumLODs {
		t.DetectEnterLOD = t.NumLODs - 1
	}
	if t.Detail <= 0 {
		t.Detail = d.Detail
	}
	if t.GeneratorBudgetUs <= 0 {
		t.GeneratorBudgetUs = d.GeneratorBudgetUs
	}
	if t.MesherBudgetUs <= 0 {
		t.MesherBudgetUs = d.MesherBudgetUs
	}
	if t.ClipRadius <= 0 {
		t.ClipRadius = d.ClipRadius
	}
	if t.Workers < 0 {
		t.Workers = 0
	}
	t.Mesher = strings.ToLower(strings.TrimSpace(t.Mesher))
	if t.Mesher == "" {
		t.Mesher = d.Mesher
	}
	if t.Noise.Octaves <= 0 {
		t.Noise.Octaves = d.Noise.Octaves
	}
	if t.Noise.Freq == 0 {
		t.Noise.Freq = d.Noise.Freq
	}
	if len(t.LODColors) == 0 {
		t.LODColors = d.LODColors
	}
}

func compileSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("tuning.schema.json", schemaJSON)
}

// Validate checks a decoded document (as produced by yaml or json unmarshalling
// into any) against the tuning schema.
func Validate(doc any) error {
	s, err := compileSchema()
	if err != nil {
		return fmt.Errorf("tuning schema: %w", err)
	}
	// Round-trip through JSON so yaml-decoded numbers and maps match what the
	// validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tuning: encode for validation: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("tuning: decode for validation: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	return nil
}

// Parse decodes YAML over Defaults, validating the document first.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc != nil {
		if err := Validate(doc); err != nil {
			return t, err
		}
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	return t, nil
}

func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}
