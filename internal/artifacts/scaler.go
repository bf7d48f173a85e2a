package artifacts

import (
	"fmt"

	"github.com/gamepulse/churn-backend/internal/domain"
)

// StandardScaler is the fitted transform shared by every model: subtract
// the training mean, divide by the training std, per column. Using any
// other scaler than the one fitted offline makes predictions meaningless.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Std) {
		return fmt.Errorf("scaler mean/std length mismatch (%d vs %d): %w",
			len(s.Mean), len(s.Std), domain.ErrArtifactCorrupt)
	}
	return nil
}

// Transform scales a raw feature vector. Zero-std columns map to 0,
// matching the offline pipeline's convention.
func (s *StandardScaler) Transform(vec []float64) ([]float64, error) {
	if len(vec) != len(s.Mean) {
		return nil, fmt.Errorf("vector has %d columns, scaler expects %d: %w",
			len(vec), len(s.Mean), domain.ErrSchemaMismatch)
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		if s.Std[i] != 0 {
			out[i] = (v - s.Mean[i]) / s.Std[i]
		}
	}
	return out, nil
}
