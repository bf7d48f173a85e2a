package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/registry"
)

// Store lazily loads the durable artifacts the offline pipeline produces
// (feature table, scaler, models, SHAP table) and serves every caller the
// same in-memory instance for the process lifetime. Concurrent first
// callers for one artifact are collapsed into a single load; failed loads
// are not cached, so callers can retry once the pipeline has run.
type Store struct {
	featuresPath string
	modelsDir    string
	reg          *registry.Registry
	log          *logger.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]any

	loads atomic.Int64
}

func NewStore(featuresPath, modelsDir string, reg *registry.Registry, log *logger.Logger) *Store {
	return &Store{
		featuresPath: featuresPath,
		modelsDir:    modelsDir,
		reg:          reg,
		log:          log.With("service", "ArtifactStore"),
		cache:        make(map[string]any),
	}
}

// get runs loader at most once concurrently per key and caches the
// result forever on success.
func (s *Store) get(key string, loader func() (any, error)) (any, error) {
	s.mu.RLock()
	v, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.cache[key]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		s.loads.Add(1)
		loaded, err := loader()
		if err != nil {
			s.log.Warn("Artifact load failed", "artifact", key, "error", err)
			return nil, err
		}

		s.mu.Lock()
		s.cache[key] = loaded
		s.mu.Unlock()
		s.log.Info("Artifact loaded", "artifact", key)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// readArtifactFile stats before reading so a missing file is reported as
// ErrArtifactMissing, distinct from a present-but-broken one.
func readArtifactFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrArtifactMissing)
		}
		return nil, fmt.Errorf("stat %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
	}
	return raw, nil
}

// Features returns the in-memory feature table, loading it on first use.
func (s *Store) Features(ctx context.Context) (*FeatureTable, error) {
	v, err := s.get("features", func() (any, error) {
		if _, err := os.Stat(s.featuresPath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%s: %w", s.featuresPath, domain.ErrArtifactMissing)
			}
			return nil, fmt.Errorf("stat %s: %v: %w", s.featuresPath, err, domain.ErrArtifactCorrupt)
		}
		return loadFeatureTable(ctx, s.featuresPath)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FeatureTable), nil
}

// Scaler returns the fitted StandardScaler shared by all models.
func (s *Store) Scaler(ctx context.Context) (*StandardScaler, error) {
	path := filepath.Join(s.modelsDir, "scaler.json")
	v, err := s.get("scaler", func() (any, error) {
		raw, err := readArtifactFile(path)
		if err != nil {
			return nil, err
		}
		var scaler StandardScaler
		if err := json.Unmarshal(raw, &scaler); err != nil {
			return nil, fmt.Errorf("decode scaler %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
		}
		if err := scaler.validate(); err != nil {
			return nil, err
		}
		return &scaler, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*StandardScaler), nil
}

// Model returns a registered model by id, loading (and for ensembles,
// resolving members) on first use. Unknown ids fail with ErrNotFound
// before any file is touched.
func (s *Store) Model(ctx context.Context, id string) (Model, error) {
	return s.model(ctx, id, make(map[string]bool))
}

// model resolves one id. resolving holds the ensemble ids on the current
// resolution path: a repeated id means the artifacts reference each other
// in a cycle, which must fail instead of re-entering an in-flight load.
func (s *Store) model(ctx context.Context, id string, resolving map[string]bool) (Model, error) {
	cfg, err := s.reg.Model(id)
	if err != nil {
		return nil, err
	}
	if resolving[id] {
		return nil, fmt.Errorf("model %s is part of an ensemble reference cycle: %w", id, domain.ErrArtifactCorrupt)
	}
	path := filepath.Join(s.modelsDir, cfg.ArtifactFile)

	v, err := s.get("model:"+id, func() (any, error) {
		raw, err := readArtifactFile(path)
		if err != nil {
			return nil, err
		}
		spec, err := decodeModelSpec(raw, path)
		if err != nil {
			return nil, err
		}
		switch spec.Kind {
		case "logistic_regression":
			return newLogisticModel(spec, path)
		case "gbdt":
			return newGBDTModel(spec, path)
		case "ensemble":
			if len(spec.Members) == 0 {
				return nil, fmt.Errorf("ensemble %s lists no members: %w", path, domain.ErrArtifactCorrupt)
			}
			resolving[id] = true
			defer delete(resolving, id)
			members := make([]Model, 0, len(spec.Members))
			for _, memberID := range spec.Members {
				member, err := s.model(ctx, memberID, resolving)
				if err != nil {
					return nil, fmt.Errorf("ensemble member %s: %w", memberID, err)
				}
				members = append(members, member)
			}
			return newEnsembleModel(members, spec.columns()), nil
		default:
			return nil, fmt.Errorf("model %s has unknown kind %q: %w", path, spec.Kind, domain.ErrArtifactCorrupt)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(Model), nil
}

// Shap returns the precomputed attribution table.
func (s *Store) Shap(ctx context.Context) (*ShapTable, error) {
	path := filepath.Join(s.modelsDir, "shap_values.json")
	v, err := s.get("shap", func() (any, error) {
		raw, err := readArtifactFile(path)
		if err != nil {
			return nil, err
		}
		return decodeShapTable(raw, path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ShapTable), nil
}
