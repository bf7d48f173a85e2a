package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/registry"
)

func testStore(t *testing.T, featuresPath, modelsDir string) *Store {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	reg, err := registry.New("", "ensemble", log)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return NewStore(featuresPath, modelsDir, reg, log)
}

func writeModelFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func writeFeatureDB(t *testing.T, path string, rows []domain.FeatureRow) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
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
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.Close()
}

const logisticJSON = `{
	"kind": "logistic_regression",
	"feature_columns": ["a", "b"],
	"weights": [1.0, -1.0],
	"bias": 0.0
}`

func TestStoreMissingArtifactIsNotCached(t *testing.T) {
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "features.db")
	store := testStore(t, featuresPath, dir)
	ctx := context.Background()

	if _, err := store.Features(ctx); !errors.Is(err, domain.ErrArtifactMissing) {
		t.Fatalf("missing feature table: want ErrArtifactMissing got %v", err)
	}

	// Once the offline pipeline produces the file, the same store must
	// serve it without a restart.
	writeFeatureDB(t, featuresPath, []domain.FeatureRow{
		{PlayerID: "player_0", Platform: "chess_com", EngagementScore: 72.3, Games7d: 14},
	})
	table, err := store.Features(ctx)
	if err != nil {
		t.Fatalf("Features after file appears: %v", err)
	}
	row, ok := table.Lookup("player_0", "chess_com")
	if !ok {
		t.Fatal("Lookup(player_0, chess_com): not found")
	}
	if row.EngagementScore != 72.3 || row.Games7d != 14 {
		t.Fatalf("row values: got engagement=%v games_7d=%v", row.EngagementScore, row.Games7d)
	}
}

func TestStoreConcurrentModelLoadHappensOnce(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "logistic_regression.json", logisticJSON)
	store := testStore(t, filepath.Join(dir, "features.db"), dir)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	models := make([]Model, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			models[i], errs[i] = store.Model(ctx, "logistic_regression")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if models[i] != models[0] {
			t.Fatalf("caller %d got a different model instance", i)
		}
	}
	if got := store.loads.Load(); got != 1 {
		t.Fatalf("load count: want=1 got=%d", got)
	}
}

func TestStoreUnknownModelFailsBeforeAnyFileRead(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, filepath.Join(dir, "features.db"), dir)

	if _, err := store.Model(context.Background(), "tabnet"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown model: want ErrNotFound got %v", err)
	}
	if got := store.loads.Load(); got != 0 {
		t.Fatalf("load count: want=0 got=%d", got)
	}
}

func TestStoreEnsembleResolvesMembers(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "logistic_regression.json", logisticJSON)
	writeModelFile(t, dir, "ensemble.json", `{
		"kind": "ensemble",
		"feature_columns": ["a", "b"],
		"members": ["logistic_regression"]
	}`)
	store := testStore(t, filepath.Join(dir, "features.db"), dir)
	ctx := context.Background()

	ensemble, err := store.Model(ctx, "ensemble")
	if err != nil {
		t.Fatalf("Model(ensemble): %v", err)
	}
	member, err := store.Model(ctx, "logistic_regression")
	if err != nil {
		t.Fatalf("Model(logistic_regression): %v", err)
	}

	vec := []float64{2.0, 0.5}
	pe, err := ensemble.PredictProba(vec)
	if err != nil {
		t.Fatalf("ensemble PredictProba: %v", err)
	}
	pm, err := member.PredictProba(vec)
	if err != nil {
		t.Fatalf("member PredictProba: %v", err)
	}
	if pe != pm {
		t.Fatalf("single-member ensemble: want=%v got=%v", pm, pe)
	}
	if got := store.loads.Load(); got != 2 {
		t.Fatalf("load count: want=2 got=%d", got)
	}
}

func TestStoreEnsembleSelfReferenceIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "ensemble.json", `{
		"kind": "ensemble",
		"members": ["ensemble"]
	}`)
	store := testStore(t, filepath.Join(dir, "features.db"), dir)

	if _, err := store.Model(context.Background(), "ensemble"); !errors.Is(err, domain.ErrArtifactCorrupt) {
		t.Fatalf("self-referencing ensemble: want ErrArtifactCorrupt got %v", err)
	}
}

func TestStoreEnsembleReferenceCycleIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "ensemble.json", `{
		"kind": "ensemble",
		"members": ["xgboost"]
	}`)
	writeModelFile(t, dir, "xgboost.json", `{
		"kind": "ensemble",
		"members": ["ensemble"]
	}`)
	store := testStore(t, filepath.Join(dir, "features.db"), dir)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := store.Model(ctx, "ensemble")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrArtifactCorrupt) {
			t.Fatalf("cyclic ensembles: want ErrArtifactCorrupt got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cyclic ensembles: Model did not return")
	}

	// The failed flights must not poison either id.
	writeModelFile(t, dir, "xgboost.json", logisticJSON)
	if _, err := store.Model(ctx, "ensemble"); err != nil {
		t.Fatalf("Model(ensemble) after cycle repaired: %v", err)
	}
}

func TestStoreScalerValidation(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, filepath.Join(dir, "features.db"), dir)
	ctx := context.Background()

	if _, err := store.Scaler(ctx); !errors.Is(err, domain.ErrArtifactMissing) {
		t.Fatalf("missing scaler: want ErrArtifactMissing got %v", err)
	}

	writeModelFile(t, dir, "scaler.json", `{"mean": [1, 2], "std": [1]}`)
	if _, err := store.Scaler(ctx); !errors.Is(err, domain.ErrArtifactCorrupt) {
		t.Fatalf("mismatched scaler: want ErrArtifactCorrupt got %v", err)
	}

	writeModelFile(t, dir, "scaler.json", `{"mean": [1, 2], "std": [1, 2]}`)
	scaler, err := store.Scaler(ctx)
	if err != nil {
		t.Fatalf("Scaler after fix: %v", err)
	}
	if len(scaler.Mean) != 2 {
		t.Fatalf("scaler columns: want=2 got=%d", len(scaler.Mean))
	}
}

func TestStoreFeatureTableDuplicateKeyIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "features.db")
	writeFeatureDB(t, featuresPath, []domain.FeatureRow{
		{PlayerID: "p1", Platform: "chess_com"},
		{PlayerID: "p1", Platform: "chess_com"},
	})
	store := testStore(t, featuresPath, dir)

	if _, err := store.Features(context.Background()); !errors.Is(err, domain.ErrArtifactCorrupt) {
		t.Fatalf("duplicate key: want ErrArtifactCorrupt got %v", err)
	}
}

func TestStoreShapMissing(t *testing.T) {
	dir := t.TempDir()
	store := testStore(t, filepath.Join(dir, "features.db"), dir)

	if _, err := store.Shap(context.Background()); !errors.Is(err, domain.ErrArtifactMissing) {
		t.Fatalf("missing shap table: want ErrArtifactMissing got %v", err)
	}
}
