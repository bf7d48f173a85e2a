package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gamepulse/churn-backend/internal/artifacts"
	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/registry"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testRegistry(t *testing.T, defaultModel string) *registry.Registry {
	t.Helper()
	reg, err := registry.New("", defaultModel, testLog(t))
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

// seedStore builds an artifact store over a temp dir, with a feature
// table holding rows when provided. Model and shap files are written by
// the tests that need them via the returned dir.
func seedStore(t *testing.T, rows []domain.FeatureRow, defaultModel string) (*artifacts.Store, string) {
	t.Helper()
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "features.db")

	if rows != nil {
		db, err := gorm.Open(sqlite.Open(featuresPath), &gorm.Config{})
		if err != nil {
			t.Fatalf("open feature db: %v", err)
		}
		if err := db.AutoMigrate(&domain.FeatureRow{}); err != nil {
			t.Fatalf("migrate feature db: %v", err)
		}
		if len(rows) > 0 {
			if err := db.Create(&rows).Error; err != nil {
				t.Fatalf("insert rows: %v", err)
			}
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	return artifacts.NewStore(featuresPath, dir, testRegistry(t, defaultModel), testLog(t)), dir
}

func testRows() []domain.FeatureRow {
	return []domain.FeatureRow{
		{PlayerID: "player_0", Platform: "chess_com", EngagementScore: 72.3, Games7d: 14, DaysSinceLastGame: 1, Churned: false},
		{PlayerID: "player_1", Platform: "chess_com", EngagementScore: 20.0, Games7d: 0, DaysSinceLastGame: 21, Churned: true},
		{PlayerID: "player_2", Platform: "opendota", EngagementScore: 55.7, Games7d: 6, DaysSinceLastGame: 3, Churned: false},
		{PlayerID: "player_3", Platform: "riot_lol", EngagementScore: 12.0, Games7d: 1, DaysSinceLastGame: 14, Churned: true},
	}
}

func TestGetPlayer(t *testing.T) {
	store, _ := seedStore(t, testRows(), "ensemble")
	svc := NewDataService(store, testLog(t))
	ctx := context.Background()

	row, err := svc.GetPlayer(ctx, "chess_com", "player_0")
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if row.EngagementScore != 72.3 || row.Games7d != 14 {
		t.Fatalf("row values: got engagement=%v games_7d=%v", row.EngagementScore, row.Games7d)
	}

	// Exact match only: right id on the wrong platform is a miss.
	if _, err := svc.GetPlayer(ctx, "opendota", "player_0"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("wrong platform: want ErrNotFound got %v", err)
	}
	if _, err := svc.GetPlayer(ctx, "chess_com", "PLAYER_0"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("case-changed id: want ErrNotFound got %v", err)
	}
}

func TestGetPlayerMissingTableIsDataUnavailable(t *testing.T) {
	store, _ := seedStore(t, nil, "ensemble")
	svc := NewDataService(store, testLog(t))

	_, err := svc.GetPlayer(context.Background(), "chess_com", "player_0")
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("missing table: want ErrDataUnavailable got %v", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing table must not read as a player miss: %v", err)
	}
}

func TestListPlayers(t *testing.T) {
	store, _ := seedStore(t, testRows(), "ensemble")
	svc := NewDataService(store, testLog(t))
	ctx := context.Background()

	all, err := svc.ListPlayers(ctx, "", 100)
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("unfiltered count: want=4 got=%d", len(all))
	}

	chess, err := svc.ListPlayers(ctx, "chess_com", 100)
	if err != nil {
		t.Fatalf("ListPlayers(chess_com): %v", err)
	}
	if len(chess) != 2 {
		t.Fatalf("filtered count: want=2 got=%d", len(chess))
	}
	for _, p := range chess {
		if p.Platform != "chess_com" {
			t.Fatalf("filter leak: got platform %q", p.Platform)
		}
	}

	capped, err := svc.ListPlayers(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListPlayers limit: %v", err)
	}
	if len(capped) != 2 {
		t.Fatalf("limited count: want=2 got=%d", len(capped))
	}

	none, err := svc.ListPlayers(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListPlayers zero limit: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("zero limit count: want=0 got=%d", len(none))
	}
}

func TestDatasetSummary(t *testing.T) {
	store, _ := seedStore(t, testRows(), "ensemble")
	svc := NewDataService(store, testLog(t))

	summary, err := svc.DatasetSummary(context.Background())
	if err != nil {
		t.Fatalf("DatasetSummary: %v", err)
	}

	if summary.TotalPlayers != 4 {
		t.Fatalf("total players: want=4 got=%d", summary.TotalPlayers)
	}
	if summary.ChurnedCount != 2 {
		t.Fatalf("churned count: want=2 got=%d", summary.ChurnedCount)
	}
	if math.Abs(summary.ChurnRate-0.5) > 1e-12 {
		t.Fatalf("churn rate: want=0.5 got=%v", summary.ChurnRate)
	}
	wantEngagement := (72.3 + 20.0 + 55.7 + 12.0) / 4
	if math.Abs(summary.AvgEngagementScore-wantEngagement) > 1e-9 {
		t.Fatalf("avg engagement: want=%v got=%v", wantEngagement, summary.AvgEngagementScore)
	}
	wantGap := (1.0 + 21.0 + 3.0 + 14.0) / 4
	if math.Abs(summary.AvgDaysSinceLastGame-wantGap) > 1e-9 {
		t.Fatalf("avg gap: want=%v got=%v", wantGap, summary.AvgDaysSinceLastGame)
	}
	wantPlatforms := []string{"chess_com", "opendota", "riot_lol"}
	if len(summary.Platforms) != len(wantPlatforms) {
		t.Fatalf("platforms: want=%v got=%v", wantPlatforms, summary.Platforms)
	}
	for i, p := range wantPlatforms {
		if summary.Platforms[i] != p {
			t.Fatalf("platforms not sorted: want=%v got=%v", wantPlatforms, summary.Platforms)
		}
	}
}

func TestDatasetSummaryEmptyTable(t *testing.T) {
	store, _ := seedStore(t, []domain.FeatureRow{}, "ensemble")
	svc := NewDataService(store, testLog(t))

	summary, err := svc.DatasetSummary(context.Background())
	if err != nil {
		t.Fatalf("DatasetSummary: %v", err)
	}
	if summary.TotalPlayers != 0 || summary.ChurnRate != 0 {
		t.Fatalf("empty summary: got %+v", summary)
	}
	if summary.Platforms == nil {
		t.Fatal("platforms: want empty slice got nil")
	}
}
