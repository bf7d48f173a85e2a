package artifacts

import (
	"encoding/json"
	"fmt"

	"github.com/gamepulse/churn-backend/internal/domain"
)

// ShapTable holds precomputed per-player, per-feature attribution values
// from the offline explainer. The explainer covers the evaluation subset,
// so a player can exist in the feature table without a row here.
type ShapTable struct {
	Columns    []string    `json:"feature_columns"`
	PlayerKeys []string    `json:"player_keys"`
	Values     [][]float64 `json:"values"`

	index map[string]int
}

func shapKey(playerID, platform string) string {
	return playerID + "_" + platform
}

// Row returns the attribution vector for a player, aligned with Columns.
func (t *ShapTable) Row(playerID, platform string) ([]float64, bool) {
	i, ok := t.index[shapKey(playerID, platform)]
	if !ok {
		return nil, false
	}
	return t.Values[i], true
}

func decodeShapTable(raw []byte, path string) (*ShapTable, error) {
	var table ShapTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode shap table %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
	}
	if len(table.PlayerKeys) != len(table.Values) {
		return nil, fmt.Errorf("shap table %s has %d keys for %d rows: %w",
			path, len(table.PlayerKeys), len(table.Values), domain.ErrArtifactCorrupt)
	}
	if len(table.Columns) == 0 {
		table.Columns = domain.FeatureColumns
	}
	for i, row := range table.Values {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("shap table %s row %d has %d values for %d columns: %w",
				path, i, len(row), len(table.Columns), domain.ErrArtifactCorrupt)
		}
	}
	table.index = make(map[string]int, len(table.PlayerKeys))
	for i, k := range table.PlayerKeys {
		table.index[k] = i
	}
	return &table, nil
}
