package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gamepulse/churn-backend/internal/artifacts"
	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
)

// DataService is the single point of contact for the offline feature
// table: player lookup, browsing, and dataset-level aggregates.
type DataService interface {
	GetPlayer(ctx context.Context, platform, playerID string) (domain.FeatureRow, error)
	ListPlayers(ctx context.Context, platform string, limit int) ([]domain.PlayerSummary, error)
	DatasetSummary(ctx context.Context) (domain.DatasetSummary, error)
}

type dataService struct {
	store *artifacts.Store
	log   *logger.Logger
}

func NewDataService(store *artifacts.Store, log *logger.Logger) DataService {
	return &dataService{
		store: store,
		log:   log.With("service", "DataService"),
	}
}

// features translates a missing feature-table artifact into
// ErrDataUnavailable: a retryable condition fixed by running the offline
// pipeline, not a client error.
func (s *dataService) features(ctx context.Context) (*artifacts.FeatureTable, error) {
	table, err := s.store.Features(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactMissing) {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrDataUnavailable)
		}
		return nil, err
	}
	return table, nil
}

func (s *dataService) GetPlayer(ctx context.Context, platform, playerID string) (domain.FeatureRow, error) {
	table, err := s.features(ctx)
	if err != nil {
		return domain.FeatureRow{}, err
	}
	row, ok := table.Lookup(playerID, platform)
	if !ok {
		return domain.FeatureRow{}, fmt.Errorf("player %q on %q: %w", playerID, platform, domain.ErrNotFound)
	}
	return row, nil
}

func (s *dataService) ListPlayers(ctx context.Context, platform string, limit int) ([]domain.PlayerSummary, error) {
	table, err := s.features(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.PlayerSummary{}, nil
	}

	out := make([]domain.PlayerSummary, 0, limit)
	for _, row := range table.Rows() {
		if platform != "" && row.Platform != platform {
			continue
		}
		out = append(out, domain.PlayerSummary{
			PlayerID:          row.PlayerID,
			Platform:          row.Platform,
			EngagementScore:   row.EngagementScore,
			Churned:           row.Churned,
			DaysSinceLastGame: row.DaysSinceLastGame,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *dataService) DatasetSummary(ctx context.Context) (domain.DatasetSummary, error) {
	table, err := s.features(ctx)
	if err != nil {
		return domain.DatasetSummary{}, err
	}

	summary := domain.DatasetSummary{TotalPlayers: table.Len()}
	if summary.TotalPlayers == 0 {
		summary.Platforms = []string{}
		return summary, nil
	}

	platforms := map[string]bool{}
	var engagementSum, gapSum float64
	for _, row := range table.Rows() {
		if row.Churned {
			summary.ChurnedCount++
		}
		platforms[row.Platform] = true
		engagementSum += row.EngagementScore
		gapSum += row.DaysSinceLastGame
	}

	summary.ChurnRate = float64(summary.ChurnedCount) / float64(summary.TotalPlayers)
	summary.AvgEngagementScore = engagementSum / float64(summary.TotalPlayers)
	summary.AvgDaysSinceLastGame = gapSum / float64(summary.TotalPlayers)
	summary.Platforms = make([]string, 0, len(platforms))
	for p := range platforms {
		summary.Platforms = append(summary.Platforms, p)
	}
	sort.Strings(summary.Platforms)
	return summary, nil
}
