package services

import (
	"context"
	"fmt"

	"github.com/gamepulse/churn-backend/internal/artifacts"
	"github.com/gamepulse/churn-backend/internal/config"
	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/registry"
)

// PredictionService turns a player's feature map into a churn
// probability, a thresholded prediction, and a risk tier. Pure over the
// loaded artifacts plus input; no side effects.
type PredictionService interface {
	PredictChurn(ctx context.Context, features map[string]float64, modelID string) (domain.Prediction, error)
}

type predictionService struct {
	store *artifacts.Store
	reg   *registry.Registry
	cfg   config.Config
	log   *logger.Logger
}

func NewPredictionService(store *artifacts.Store, reg *registry.Registry, cfg config.Config, log *logger.Logger) PredictionService {
	return &predictionService{
		store: store,
		reg:   reg,
		cfg:   cfg,
		log:   log.With("service", "PredictionService"),
	}
}

func (s *predictionService) PredictChurn(ctx context.Context, features map[string]float64, modelID string) (domain.Prediction, error) {
	if modelID == "" {
		modelID = s.reg.DefaultModel()
	}
	if _, err := s.reg.Model(modelID); err != nil {
		return domain.Prediction{}, err
	}

	model, err := s.store.Model(ctx, modelID)
	if err != nil {
		return domain.Prediction{}, err
	}
	scaler, err := s.store.Scaler(ctx)
	if err != nil {
		return domain.Prediction{}, err
	}

	vec, err := assembleVector(features, model.Columns())
	if err != nil {
		// Schema drift between the offline pipeline and serving. Loud on
		// purpose; never coerced.
		s.log.Error("Feature schema mismatch", "model", modelID, "error", err)
		return domain.Prediction{}, err
	}

	scaled, err := scaler.Transform(vec)
	if err != nil {
		return domain.Prediction{}, err
	}

	prob, err := model.PredictProba(scaled)
	if err != nil {
		return domain.Prediction{}, err
	}
	prob = clamp01(prob)

	return domain.Prediction{
		ChurnProbability: prob,
		ChurnPredicted:   prob >= s.cfg.ChurnThreshold,
		RiskLevel:        s.riskLevel(prob),
		ModelUsed:        modelID,
	}, nil
}

// assembleVector orders the feature map into the model's declared column
// order. Any missing column is a schema mismatch.
func assembleVector(features map[string]float64, columns []string) ([]float64, error) {
	vec := make([]float64, len(columns))
	for i, col := range columns {
		v, ok := features[col]
		if !ok {
			return nil, fmt.Errorf("feature column %q missing: %w", col, domain.ErrSchemaMismatch)
		}
		vec[i] = v
	}
	return vec, nil
}

// riskLevel buckets a probability: Low below RiskLowMax, High above
// RiskHighMin, Medium between. Boundaries come from config so serving
// can never drift from the offline policy.
func (s *predictionService) riskLevel(prob float64) string {
	switch {
	case prob < s.cfg.RiskLowMax:
		return domain.RiskLow
	case prob > s.cfg.RiskHighMin:
		return domain.RiskHigh
	default:
		return domain.RiskMedium
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
