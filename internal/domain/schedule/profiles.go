package schedule

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/model"
)

// Profile expands one cron firing into jobs: one per report type per county.
// Empty counties means the profile runs unrestricted under a single service
// identity.
type Profile struct {
	Key          string   `yaml:"key"`
	Role         string   `yaml:"role"`
	Counties     []string `yaml:"counties"`
	ReportTypes  []string `yaml:"reportTypes"`
	Cadences     []string `yaml:"cadences"`
	TargetSystem string   `yaml:"targetSystem"`
	DataFormat   string   `yaml:"dataFormat"`
	Priority     int      `yaml:"priority"`
	ChunkSize    int      `yaml:"chunkSize"`
}

// EnabledFor reports whether the profile participates in the cadence.
func (p Profile) EnabledFor(c Cadence) bool {
	for _, name := range p.Cadences {
		if Cadence(strings.ToLower(name)) == c {
			return true
		}
	}
	return false
}

// Format returns the profile's output format, JSON when unset.
func (p Profile) Format() model.DataFormat {
	if p.DataFormat == "" {
		return model.FormatJSON
	}
	return model.DataFormat(strings.ToUpper(p.DataFormat))
}

func (p Profile) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("profile needs a key")
	}
	if !auth.Role(p.Role).Known() {
		return fmt.Errorf("profile %q has unknown role %q", p.Key, p.Role)
	}
	if len(p.ReportTypes) == 0 {
		return fmt.Errorf("profile %q lists no reportTypes", p.Key)
	}
	if len(p.Cadences) == 0 {
		return fmt.Errorf("profile %q lists no cadences", p.Key)
	}
	for _, name := range p.Cadences {
		if !Cadence(strings.ToLower(name)).Valid() {
			return fmt.Errorf("profile %q has unknown cadence %q", p.Key, name)
		}
	}
	if p.DataFormat != "" && !p.Format().Valid() {
		return fmt.Errorf("profile %q has unknown dataFormat %q", p.Key, p.DataFormat)
	}
	if p.Priority < 0 || p.Priority > 100 {
		return fmt.Errorf("profile %q priority %d out of range", p.Key, p.Priority)
	}
	return nil
}

// Seed is one job the fan-out will enqueue: the profile row crossed with a
// report type and county, plus the cadence window.
type Seed struct {
	ProfileKey string
	Role       string
	County     string
	ReportType string

	TargetSystem string
	DataFormat   model.DataFormat
	Priority     int
	ChunkSize    int

	Window model.DateRange
}

// Expand crosses the profile with the window. Counties fan out per county;
// an empty county list yields unrestricted seeds.
func (p Profile) Expand(window model.DateRange) []Seed {
	counties := p.Counties
	if len(counties) == 0 {
		counties = []string{""}
	}
	seeds := make([]Seed, 0, len(p.ReportTypes)*len(counties))
	for _, rt := range p.ReportTypes {
		for _, county := range counties {
			seeds = append(seeds, Seed{
				ProfileKey:   p.Key,
				Role:         p.Role,
				County:       county,
				ReportType:   rt,
				TargetSystem: p.TargetSystem,
				DataFormat:   p.Format(),
				Priority:     p.Priority,
				ChunkSize:    p.ChunkSize,
				Window:       window,
			})
		}
	}
	return seeds
}

// CronUsername is the per-county service identity the token minter
// authenticates as. Unrestricted seeds share the "all" identity.
func (s Seed) CronUsername() string {
	county := strings.ToLower(s.County)
	if county == "" {
		county = "all"
	}
	return fmt.Sprintf("cron_%s_%s", auth.Role(s.Role).CronPrefix(), county)
}

// profileFile is the on-disk shape, sharing the file with dependency rules.
type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads the cron profiles from the rules file. Missing files
// yield an empty list.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cron profiles %s: %w", path, err)
	}
	return ParseProfiles(data)
}

// ParseProfiles validates raw YAML into the profile list.
func ParseProfiles(data []byte) ([]Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cron profiles: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Profiles))
	for i, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("cron profile %d: %w", i, err)
		}
		if _, dup := seen[p.Key]; dup {
			return nil, fmt.Errorf("cron profile key %q appears twice", p.Key)
		}
		seen[p.Key] = struct{}{}
	}
	return f.Profiles, nil
}
