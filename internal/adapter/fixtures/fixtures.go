// Package fixtures serves static provider snapshots used when a live fetch
// is exhausted. Snapshots are bundled into the binary; a directory can
// replace them. A missing or unreadable snapshot is reported as an error,
// never a panic.
package fixtures

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/towerguard/site-health/internal/domain"
)

//go:embed data/*.json
var bundled embed.FS

// Snapshot file names.
const (
	NASAPowerFile = "nasa_power_sample.json"
	CHIRPSFile    = "chirps_sample.json"
	SoilGridsFile = "soilgrids_sample.json"
)

// ErrNoFixture means no usable snapshot exists for a source.
var ErrNoFixture = errors.New("no fixture")

// Set reads snapshots from one file system. A nil *Set has no fixtures.
type Set struct {
	fsys fs.FS
}

// Bundled returns the snapshots compiled into the binary.
func Bundled() *Set {
	sub, err := fs.Sub(bundled, "data")
	if err != nil {
		panic(fmt.Sprintf("bundled fixtures: %v", err))
	}
	return &Set{fsys: sub}
}

// New reads snapshots from dir, or the bundled set when dir is empty.
func New(dir string) *Set {
	if dir == "" {
		return Bundled()
	}
	return FromFS(os.DirFS(dir))
}

// FromFS reads snapshots from fsys.
func FromFS(fsys fs.FS) *Set {
	return &Set{fsys: fsys}
}

func (s *Set) load(name string, v any) error {
	if s == nil || s.fsys == nil {
		return fmt.Errorf("%w: %s", ErrNoFixture, name)
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoFixture, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoFixture, name, err)
	}
	return nil
}

type nasaPowerSnapshot struct {
	Properties struct {
		T2M         *float64 `json:"T2M"`
		T2MMin      *float64 `json:"T2M_MIN"`
		T2MMax      *float64 `json:"T2M_MAX"`
		PRECTOTCORR *float64 `json:"PRECTOTCORR"`
	} `json:"properties"`
}

// Temperature returns the NASA POWER temperature snapshot.
func (s *Set) Temperature() (domain.TemperatureClimatology, error) {
	var snap nasaPowerSnapshot
	if err := s.load(NASAPowerFile, &snap); err != nil {
		return domain.TemperatureClimatology{}, err
	}
	p := snap.Properties
	if p.T2MMin == nil || p.T2MMax == nil {
		return domain.TemperatureClimatology{}, fmt.Errorf("%w: %s has no T2M_MIN/T2M_MAX", ErrNoFixture, NASAPowerFile)
	}
	return domain.TemperatureClimatology{MeanC: p.T2M, MinC: *p.T2MMin, MaxC: *p.T2MMax}, nil
}

// Rainfall returns the NASA POWER precipitation snapshot in mm/day, or the
// CHIRPS annual total spread over 365 days when the former is absent.
func (s *Set) Rainfall() (domain.RainfallClimatology, error) {
	var snap nasaPowerSnapshot
	nasaErr := s.load(NASAPowerFile, &snap)
	if nasaErr == nil && snap.Properties.PRECTOTCORR != nil {
		return domain.RainfallClimatology{MeanMMPerDay: *snap.Properties.PRECTOTCORR}, nil
	}

	var chirps struct {
		AnnualMeanMM *float64 `json:"annual_mean_mm"`
	}
	if err := s.load(CHIRPSFile, &chirps); err != nil {
		return domain.RainfallClimatology{}, err
	}
	if chirps.AnnualMeanMM == nil {
		return domain.RainfallClimatology{}, fmt.Errorf("%w: %s has no annual_mean_mm", ErrNoFixture, CHIRPSFile)
	}
	return domain.RainfallClimatology{MeanMMPerDay: *chirps.AnnualMeanMM / 365}, nil
}

// Soil returns the SoilGrids snapshot, already in normalised units.
func (s *Set) Soil() (domain.SoilProperties, error) {
	var soil domain.SoilProperties
	if err := s.load(SoilGridsFile, &soil); err != nil {
		return domain.SoilProperties{}, err
	}
	if len(soil.Missing()) == 5 {
		return domain.SoilProperties{}, fmt.Errorf("%w: %s has no soil values", ErrNoFixture, SoilGridsFile)
	}
	return soil, nil
}
