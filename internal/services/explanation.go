package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gamepulse/churn-backend/internal/artifacts"
	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
)

// featureLabels maps raw feature names to the plain-English labels used
// in explanations. Extending the feature schema means adding a row here;
// unknown features fall back to their raw name.
var featureLabels = map[string]string{
	"games_7d":               "Games played in the last 7 days",
	"games_14d":              "Games played in the last 14 days",
	"games_30d":              "Games played in the last 30 days",
	"playtime_hours_7d":      "Hours played in the last 7 days",
	"playtime_hours_14d":     "Hours played in the last 14 days",
	"playtime_hours_30d":     "Hours played in the last 30 days",
	"avg_daily_sessions_7d":  "Average daily sessions (last 7 days)",
	"avg_daily_sessions_30d": "Average daily sessions (last 30 days)",
	"max_gap_days_30d":       "Longest break between games (last 30 days)",
	"games_trend_7d_vs_14d":  "Activity trend (recent vs earlier, above 0.5 = increasing)",
	"win_rate_7d":            "Win rate in the last 7 days",
	"win_rate_30d":           "Win rate in the last 30 days",
	"current_rating":         "Current skill rating",
	"rating_change_30d":      "Rating change over last 30 days",
	"unique_peers_30d":       "Unique teammates in the last 30 days",
	"games_with_peers_30d":   "Games played with teammates (last 30 days)",
	"engagement_score":       "Overall engagement score (0-100 composite)",
	"days_since_last_game":   "Days since their last game",
}

// FeatureLabel returns the human-readable label for a feature name.
func FeatureLabel(feature string) string {
	if label, ok := featureLabels[feature]; ok {
		return label
	}
	return feature
}

// ExplanationService serves precomputed SHAP attributions: which
// features pushed a specific player's prediction toward or away from
// churn, ranked by impact.
type ExplanationService interface {
	// ExplainPlayer returns the full ranked attribution list for one
	// player, most impactful feature first. ErrNotFound when the player
	// has no precomputed explanation; callers wanting top-K slice it.
	ExplainPlayer(ctx context.Context, platform, playerID string) ([]domain.ShapEntry, error)
}

type explanationService struct {
	store *artifacts.Store
	log   *logger.Logger
}

func NewExplanationService(store *artifacts.Store, log *logger.Logger) ExplanationService {
	return &explanationService{
		store: store,
		log:   log.With("service", "ExplanationService"),
	}
}

func (s *explanationService) ExplainPlayer(ctx context.Context, platform, playerID string) ([]domain.ShapEntry, error) {
	table, err := s.store.Shap(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactMissing) {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrDataUnavailable)
		}
		return nil, err
	}

	row, ok := table.Row(playerID, platform)
	if !ok {
		return nil, fmt.Errorf("no explanation for player %q on %q: %w", playerID, platform, domain.ErrNotFound)
	}

	entries := make([]domain.ShapEntry, len(row))
	for i, v := range row {
		feature := table.Columns[i]
		direction := domain.DirectionDecreasesChurn
		if v > 0 {
			direction = domain.DirectionIncreasesChurn
		}
		entries[i] = domain.ShapEntry{
			Feature:   feature,
			Label:     FeatureLabel(feature),
			ShapValue: v,
			Direction: direction,
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return math.Abs(entries[i].ShapValue) > math.Abs(entries[j].ShapValue)
	})
	return entries, nil
}
