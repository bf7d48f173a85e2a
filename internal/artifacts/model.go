package artifacts

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gamepulse/churn-backend/internal/domain"
)

// Model is a loaded, immutable prediction artifact. PredictProba takes a
// scaled feature vector in the model's declared column order and returns
// the churn probability.
type Model interface {
	PredictProba(vec []float64) (float64, error)
	// Columns is the feature schema the model expects, in order.
	Columns() []string
}

// modelSpec is the serialized form written by the offline training
// pipeline. Kind selects the evaluator; ensemble members are resolved by
// the store against the registry.
type modelSpec struct {
	Kind           string       `json:"kind"`
	FeatureColumns []string     `json:"feature_columns"`
	Weights        []float64    `json:"weights"`
	Bias           float64      `json:"bias"`
	BaseScore      float64      `json:"base_score"`
	LearningRate   float64      `json:"learning_rate"`
	Trees          [][]treeNode `json:"trees"`
	Members        []string     `json:"members"`
}

// treeNode is one node of a flattened regression tree. Left/Right of -1
// marks a leaf; Value is the leaf margin.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

func decodeModelSpec(raw []byte, path string) (*modelSpec, error) {
	var spec modelSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode model %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
	}
	switch spec.Kind {
	case "logistic_regression", "gbdt", "ensemble":
	default:
		return nil, fmt.Errorf("model %s has unknown kind %q: %w", path, spec.Kind, domain.ErrArtifactCorrupt)
	}
	return &spec, nil
}

func (s *modelSpec) columns() []string {
	if len(s.FeatureColumns) > 0 {
		return s.FeatureColumns
	}
	return domain.FeatureColumns
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// logisticModel applies sigmoid over a weighted sum, the serving-side
// counterpart of the offline logistic regression.
type logisticModel struct {
	weights []float64
	bias    float64
	cols    []string
}

func newLogisticModel(spec *modelSpec, path string) (*logisticModel, error) {
	cols := spec.columns()
	if len(spec.Weights) != len(cols) {
		return nil, fmt.Errorf("model %s has %d weights for %d columns: %w",
			path, len(spec.Weights), len(cols), domain.ErrArtifactCorrupt)
	}
	return &logisticModel{weights: spec.Weights, bias: spec.Bias, cols: cols}, nil
}

func (m *logisticModel) Columns() []string { return m.cols }

func (m *logisticModel) PredictProba(vec []float64) (float64, error) {
	if len(vec) != len(m.weights) {
		return 0, fmt.Errorf("vector has %d columns, model expects %d: %w",
			len(vec), len(m.weights), domain.ErrSchemaMismatch)
	}
	sum := m.bias
	for i, v := range vec {
		sum += m.weights[i] * v
	}
	return sigmoid(sum), nil
}

// gbdtModel sums tree margins over a base score and squashes through
// sigmoid. Covers the xgboost/lightgbm/catboost registry entries, whose
// exporters all flatten to this form.
type gbdtModel struct {
	baseScore    float64
	learningRate float64
	trees        [][]treeNode
	cols         []string
}

func newGBDTModel(spec *modelSpec, path string) (*gbdtModel, error) {
	if len(spec.Trees) == 0 {
		return nil, fmt.Errorf("model %s has no trees: %w", path, domain.ErrArtifactCorrupt)
	}
	cols := spec.columns()
	for ti, tree := range spec.Trees {
		if len(tree) == 0 {
			return nil, fmt.Errorf("model %s tree %d is empty: %w", path, ti, domain.ErrArtifactCorrupt)
		}
		for ni, n := range tree {
			if n.Left == -1 && n.Right == -1 {
				continue
			}
			if n.Left < 0 || n.Left >= len(tree) || n.Right < 0 || n.Right >= len(tree) {
				return nil, fmt.Errorf("model %s tree %d node %d has bad children: %w",
					path, ti, ni, domain.ErrArtifactCorrupt)
			}
			if n.Feature < 0 || n.Feature >= len(cols) {
				return nil, fmt.Errorf("model %s tree %d node %d splits on column %d of %d: %w",
					path, ti, ni, n.Feature, len(cols), domain.ErrArtifactCorrupt)
			}
		}
	}
	lr := spec.LearningRate
	if lr == 0 {
		lr = 1.0
	}
	return &gbdtModel{baseScore: spec.BaseScore, learningRate: lr, trees: spec.Trees, cols: cols}, nil
}

func (m *gbdtModel) Columns() []string { return m.cols }

func (m *gbdtModel) PredictProba(vec []float64) (float64, error) {
	if len(vec) != len(m.cols) {
		return 0, fmt.Errorf("vector has %d columns, model expects %d: %w",
			len(vec), len(m.cols), domain.ErrSchemaMismatch)
	}
	margin := m.baseScore
	for _, tree := range m.trees {
		margin += m.learningRate * evalTree(tree, vec)
	}
	return sigmoid(margin), nil
}

func evalTree(tree []treeNode, vec []float64) float64 {
	i := 0
	for {
		n := tree[i]
		if n.Left == -1 && n.Right == -1 {
			return n.Value
		}
		if vec[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// ensembleModel averages member probabilities (soft voting). Members must
// accept the same feature schema.
type ensembleModel struct {
	members []Model
	cols    []string
}

func newEnsembleModel(members []Model, cols []string) *ensembleModel {
	return &ensembleModel{members: members, cols: cols}
}

func (m *ensembleModel) Columns() []string { return m.cols }

func (m *ensembleModel) PredictProba(vec []float64) (float64, error) {
	if len(m.members) == 0 {
		return 0, fmt.Errorf("ensemble has no members: %w", domain.ErrArtifactCorrupt)
	}
	var sum float64
	for _, member := range m.members {
		p, err := member.PredictProba(vec)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum / float64(len(m.members)), nil
}
