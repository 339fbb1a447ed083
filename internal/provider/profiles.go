package provider

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"topup_store/internal/models"

	"gopkg.in/yaml.v3"
)

// Catalog kinds tell which gateway endpoint lists a provider's products.
const (
	CatalogPacks    = "packs"
	CatalogProducts = "products"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// ErrInvalidProfile indicates a provider profile that cannot be used.
var ErrInvalidProfile = errors.New("provider: invalid profile")

// Profile describes how a provider is reached and what its games require.
type Profile struct {
	Name          models.Provider `yaml:"name"`
	Catalog       string          `yaml:"catalog"`
	FixedRegion   string          `yaml:"fixedRegion"`
	TakesServerID bool            `yaml:"takesServerId"`
}

type profileFile struct {
	Providers []Profile `yaml:"providers"`
}

// Profiles indexes provider profiles by provider.
type Profiles map[models.Provider]Profile

// DefaultProfiles returns the built-in provider profiles.
func DefaultProfiles() Profiles {
	profiles, err := parseProfiles(defaultProfiles, Profiles{})
	if err != nil {
		panic(err)
	}
	return profiles
}

// LoadProfiles returns the built-in profiles merged with the ones in the file at
// path. An empty path yields the built-in profiles.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provider: read profiles: %w", err)
	}
	return parseProfiles(data, profiles)
}

func parseProfiles(data []byte, base Profiles) (Profiles, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("provider: parse profiles: %w", err)
	}

	merged := make(Profiles, len(base)+len(file.Providers))
	for name, profile := range base {
		merged[name] = profile
	}
	for _, profile := range file.Providers {
		if !profile.Name.Valid() {
			return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidProfile, profile.Name)
		}
		if profile.Catalog != CatalogPacks && profile.Catalog != CatalogProducts {
			return nil, fmt.Errorf("%w: %s has catalog %q", ErrInvalidProfile, profile.Name, profile.Catalog)
		}
		merged[profile.Name] = profile
	}
	return merged, nil
}

// TakesServerID reports whether players of the provider's games may give a server ID.
func (p Profiles) TakesServerID(provider models.Provider) bool {
	return p[provider].TakesServerID
}

// FixedRegion returns the region every game of the provider is sold in, if any.
func (p Profiles) FixedRegion(provider models.Provider) string {
	return p[provider].FixedRegion
}
