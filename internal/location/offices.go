package location

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"goodzwork-checkin/models"
)

type Office struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`
	Enabled      bool    `json:"enabled" yaml:"enabled"`
}

type OfficeList struct {
	Offices []Office `json:"offices" yaml:"offices"`
}

type OfficeMatch struct {
	Office   Office
	Distance float64
	IsValid  bool
}

// OfficeGeofence answers geofence checks locally against an offices file.
type OfficeGeofence struct {
	path string
	log  logrus.FieldLogger

	mu      sync.RWMutex
	offices []Office
}

func NewOfficeGeofence(path string, log logrus.FieldLogger) *OfficeGeofence {
	return &OfficeGeofence{path: path, log: log}
}

// ============================================================
// LOAD OFFICES
// ============================================================

// Load reads the offices file, writing a default one first when it is
// missing. Files ending in .yaml or .yml are parsed as YAML, anything else
// as JSON.
func (g *OfficeGeofence) Load() error {
	g.log.Debugf("🔍 Looking for offices file at: %s", g.path)

	if _, err := os.Stat(g.path); os.IsNotExist(err) {
		g.log.Warn("⚠️  Offices file not found, creating default...")

		if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := g.writeDefault(); err != nil {
			return fmt.Errorf("failed to create default offices file: %w", err)
		}

		g.log.Infof("✅ Created default offices file at: %s", g.path)
	}

	data, err := os.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("failed to read offices file: %w", err)
	}

	var list OfficeList
	if isYAML(g.path) {
		err = yaml.Unmarshal(data, &list)
	} else {
		err = json.Unmarshal(data, &list)
	}
	if err != nil {
		return fmt.Errorf("failed to parse offices file %s: %w", g.path, err)
	}

	enabled := make([]Office, 0, len(list.Offices))
	for _, office := range list.Offices {
		if office.Enabled {
			enabled = append(enabled, office)
		}
	}
	if len(enabled) == 0 {
		return fmt.Errorf("no enabled offices found in %s", g.path)
	}

	g.mu.Lock()
	g.offices = enabled
	g.mu.Unlock()

	g.log.Infof("✅ Loaded %d office location(s):", len(enabled))
	for _, office := range enabled {
		g.log.Infof("   - %s: (%.6f, %.6f) - radius: %.0fm",
			office.Name, office.Latitude, office.Longitude, office.RadiusMeters)
	}
	return nil
}

func (g *OfficeGeofence) writeDefault() error {
	defaults := OfficeList{
		Offices: []Office{
			{
				ID:           "HQ",
				Name:         "GoodZWork HQ",
				Latitude:     10.7769,
				Longitude:    106.7009,
				RadiusMeters: 50,
				Enabled:      true,
			},
		},
	}

	var (
		data []byte
		err  error
	)
	if isYAML(g.path) {
		data, err = yaml.Marshal(defaults)
	} else {
		data, err = json.MarshalIndent(defaults, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal default offices: %w", err)
	}

	if err := os.WriteFile(g.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (g *OfficeGeofence) Offices() []Office {
	g.mu.RLock()
	defer g.mu.RUnlock()

	offices := make([]Office, len(g.offices))
	copy(offices, g.offices)
	return offices
}

// ============================================================
// FIND NEAREST OFFICE
// ============================================================

func (g *OfficeGeofence) Nearest(lat, lon float64) *OfficeMatch {
	var best *OfficeMatch
	for _, office := range g.Offices() {
		distance := Distance(office.Latitude, office.Longitude, lat, lon)
		if best == nil || distance < best.Distance {
			best = &OfficeMatch{
				Office:   office,
				Distance: distance,
				IsValid:  distance <= office.RadiusMeters,
			}
		}
	}
	return best
}

// CheckLocation evaluates the position against the nearest enabled office.
// Messages use the backend's wording.
func (g *OfficeGeofence) CheckLocation(ctx context.Context, lat, lon float64) (*models.GeofenceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	match := g.Nearest(lat, lon)
	if match == nil {
		return nil, fmt.Errorf("no offices loaded from %s", g.path)
	}

	g.log.Debugf("📍 Nearest office %s at %.2fm (max %.0fm)",
		match.Office.Name, match.Distance, match.Office.RadiusMeters)

	radius := formatRadius(match.Office.RadiusMeters)
	result := &models.GeofenceResult{
		Allowed:     match.IsValid,
		Distance:    match.Distance,
		MaxDistance: match.Office.RadiusMeters,
	}
	if match.IsValid {
		result.Message = fmt.Sprintf("Bạn đang trong phạm vi cho phép (%.0fm / %sm)", match.Distance, radius)
	} else {
		result.Message = fmt.Sprintf("Bạn đang ở quá xa công ty (%.0fm). Khoảng cách tối đa cho phép: %sm", match.Distance, radius)
	}
	return result, nil
}

// CompanyLocation reports the first enabled office, mirroring the backend's
// single company location.
func (g *OfficeGeofence) CompanyLocation(ctx context.Context) (*models.CompanyLocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offices := g.Offices()
	if len(offices) == 0 {
		return nil, fmt.Errorf("no offices loaded from %s", g.path)
	}
	return &models.CompanyLocation{
		Latitude:  offices[0].Latitude,
		Longitude: offices[0].Longitude,
		Radius:    offices[0].RadiusMeters,
	}, nil
}

func formatRadius(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
