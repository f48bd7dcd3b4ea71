package ecalveto

import (
	"fmt"
	"log"
	"os"

	"github.com/goccy/go-yaml"
)

// Logf is the diagnostic logger used by the library. Binaries leave it on
// log.Printf; tests may mute it with SetLogger(nil).
var Logf func(format string, v ...any) = log.Printf

func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Geometry holds the detector constants used to select scoring-plane hits
// and project trajectories. Lengths in mm, energies in MeV.
type Geometry struct {
	BeamEnergy  float64   `yaml:"beam_energy"`
	SPThickness float64   `yaml:"sp_thickness"`
	TargetSPZ   float64   `yaml:"target_sp_z"`
	EcalSPZ     float64   `yaml:"ecal_sp_z"`
	CellRadius  float64   `yaml:"cell_radius"`
	LayerZs     []float64 `yaml:"layer_zs"`
}

// DefaultGeometry returns the v12 detector constants.
func DefaultGeometry() Geometry {
	return Geometry{
		BeamEnergy:  4000,
		SPThickness: 0.001,
		TargetSPZ:   0.1755,
		EcalSPZ:     240.5005,
		CellRadius:  5.0,
		LayerZs: []float64{
			223.8000030517578, 226.6999969482422, 233.0500030517578, 237.4499969482422,
			245.3000030517578, 251.1999969482422, 260.29998779296875, 266.70001220703125,
			275.79998779296875, 282.20001220703125, 291.29998779296875, 297.70001220703125,
			306.79998779296875, 313.20001220703125, 322.29998779296875, 328.70001220703125,
			337.79998779296875, 344.20001220703125, 353.29998779296875, 359.70001220703125,
			368.79998779296875, 375.20001220703125, 384.29998779296875, 390.70001220703125,
			403.29998779296875, 413.20001220703125, 425.79998779296875, 435.70001220703125,
			448.29998779296875, 458.20001220703125, 470.79998779296875, 480.70001220703125,
			493.29998779296875, 503.20001220703125,
		},
	}
}

func (g Geometry) Validate() error {
	switch {
	case g.BeamEnergy <= 0:
		return fmt.Errorf("beam energy must be positive, got %v", g.BeamEnergy)
	case g.SPThickness <= 0:
		return fmt.Errorf("scoring plane thickness must be positive, got %v", g.SPThickness)
	case g.CellRadius <= 0:
		return fmt.Errorf("cell radius must be positive, got %v", g.CellRadius)
	case len(g.LayerZs) == 0:
		return fmt.Errorf("no ECal layers")
	}
	return nil
}

// Config is the optional YAML configuration shared by the binaries. Values
// missing from the file keep their defaults.
type Config struct {
	Geometry Geometry `yaml:"geometry"`
	Booster  Params   `yaml:"booster"`
}

func DefaultConfig() Config {
	return Config{
		Geometry: DefaultGeometry(),
		Booster:  DefaultParams(),
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("could not decode config %q: %w", path, err)
	}
	if err := cfg.Geometry.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid geometry in %q: %w", path, err)
	}
	if err := cfg.Booster.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid booster parameters in %q: %w", path, err)
	}
	return cfg, nil
}
