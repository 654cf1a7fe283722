package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Restaurant is the profile the agent sells for.
type Restaurant struct {
	Name         string  `koanf:"name"`
	City         string  `koanf:"city"`
	PixKey       string  `koanf:"pix_key"`
	PixRecipient string  `koanf:"pix_recebedor"`
	Temperature  float64 `koanf:"temperature"`
	Menu         any     `koanf:"menu"`
	DeliveryFees any     `koanf:"delivery_fees"`
}

// DefaultRestaurant returns the profile used when no file is present.
func DefaultRestaurant() *Restaurant {
	return &Restaurant{
		Name:        "MEU RESTAURANTE",
		City:        "Curitiba",
		Temperature: 0.4,
	}
}

// LoadRestaurant reads the restaurant profile from a YAML file, then overlays
// RESTAURANT_* environment variables (RESTAURANT_PIX_KEY -> pix_key).
// A missing file is not an error.
func LoadRestaurant(path string) (*Restaurant, error) {
	k := koanf.New(".")
	r := DefaultRestaurant()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading restaurant profile %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing restaurant profile %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("RESTAURANT_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "RESTAURANT_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading restaurant env overrides: %w", err)
	}

	if err := k.Unmarshal("", r); err != nil {
		return nil, fmt.Errorf("unmarshalling restaurant profile: %w", err)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the profile is usable in a prompt.
func (r *Restaurant) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("restaurant name cannot be empty")
	}
	// The chat API omits a zero temperature and falls back to its own default.
	if r.Temperature <= 0 || r.Temperature > 2 {
		return fmt.Errorf("restaurant temperature must be within (0, 2], got %v", r.Temperature)
	}
	return nil
}
