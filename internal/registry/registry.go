package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
)

// PlatformConfig describes one supported gaming platform. The frontend
// builds its platform dropdown from these entries.
type PlatformConfig struct {
	ID              string `json:"id" yaml:"id"`
	DisplayName     string `json:"display_name" yaml:"display_name"`
	RequiresAPIKey  bool   `json:"requires_api_key" yaml:"requires_api_key"`
	PlayerIDLabel   string `json:"player_id_label" yaml:"player_id_label"`
	PlayerIDExample string `json:"player_id_example" yaml:"player_id_example"`
}

// ModelConfig describes one registered model artifact.
type ModelConfig struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description" yaml:"description"`
	// ArtifactFile is the file name under the models directory.
	ArtifactFile string `json:"artifact_file" yaml:"artifact_file"`
}

// Registry answers which platforms and models exist without touching any
// artifact. Built once at startup, read-only afterwards. Adding an entry
// (in the built-in catalog or the overlay file) requires no change to any
// consuming component.
type Registry struct {
	platforms   []PlatformConfig
	models      []ModelConfig
	platformIdx map[string]int
	modelIdx    map[string]int
	defaultID   string
}

type catalogFile struct {
	Platforms []PlatformConfig `yaml:"platforms"`
	Models    []ModelConfig    `yaml:"models"`
}

// New builds the registry from the built-in catalog, optionally overlaid
// with entries from a YAML file. Overlay entries with a known id replace
// the built-in entry; new ids append.
func New(overlayPath string, defaultModel string, log *logger.Logger) (*Registry, error) {
	r := &Registry{
		platforms:   append([]PlatformConfig(nil), builtinPlatforms...),
		models:      append([]ModelConfig(nil), builtinModels...),
		platformIdx: make(map[string]int),
		modelIdx:    make(map[string]int),
		defaultID:   defaultModel,
	}

	if overlayPath != "" {
		raw, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("read registry catalog %s: %w", overlayPath, err)
		}
		var overlay catalogFile
		if err := yaml.Unmarshal(raw, &overlay); err != nil {
			return nil, fmt.Errorf("parse registry catalog %s: %w", overlayPath, err)
		}
		for _, p := range overlay.Platforms {
			r.platforms = upsertPlatform(r.platforms, p)
		}
		for _, m := range overlay.Models {
			r.models = upsertModel(r.models, m)
		}
		if log != nil {
			log.Info("Registry catalog overlay applied", "path", overlayPath,
				"platforms", len(overlay.Platforms), "models", len(overlay.Models))
		}
	}

	for i, p := range r.platforms {
		r.platformIdx[p.ID] = i
	}
	for i, m := range r.models {
		r.modelIdx[m.ID] = i
	}

	if _, ok := r.modelIdx[r.defaultID]; !ok {
		return nil, fmt.Errorf("default model %q is not registered", r.defaultID)
	}
	return r, nil
}

func upsertPlatform(list []PlatformConfig, p PlatformConfig) []PlatformConfig {
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return list
		}
	}
	return append(list, p)
}

func upsertModel(list []ModelConfig, m ModelConfig) []ModelConfig {
	for i := range list {
		if list[i].ID == m.ID {
			list[i] = m
			return list
		}
	}
	return append(list, m)
}

// Platforms returns all registered platforms in catalog order.
func (r *Registry) Platforms() []PlatformConfig {
	return append([]PlatformConfig(nil), r.platforms...)
}

// Models returns all registered models in catalog order.
func (r *Registry) Models() []ModelConfig {
	return append([]ModelConfig(nil), r.models...)
}

// Platform resolves a platform id. Unknown ids return ErrNotFound.
func (r *Registry) Platform(id string) (PlatformConfig, error) {
	i, ok := r.platformIdx[id]
	if !ok {
		return PlatformConfig{}, fmt.Errorf("platform %q: %w", id, domain.ErrNotFound)
	}
	return r.platforms[i], nil
}

// Model resolves a model id. Unknown ids return ErrNotFound.
func (r *Registry) Model(id string) (ModelConfig, error) {
	i, ok := r.modelIdx[id]
	if !ok {
		return ModelConfig{}, fmt.Errorf("model %q: %w", id, domain.ErrNotFound)
	}
	return r.models[i], nil
}

// DefaultModel is used when a request carries no model selector.
func (r *Registry) DefaultModel() string { return r.defaultID }
