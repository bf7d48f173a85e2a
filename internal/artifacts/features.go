package artifacts

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gamepulse/churn-backend/internal/domain"
)

// FeatureTable is the full offline feature table held in memory.
// Immutable after load; safe for unsynchronized concurrent reads.
type FeatureTable struct {
	rows  []domain.FeatureRow
	index map[string]int
}

func featureKey(playerID, platform string) string {
	return playerID + "\x00" + platform
}

// Lookup is an exact, case-sensitive match on the composite key.
func (t *FeatureTable) Lookup(playerID, platform string) (domain.FeatureRow, bool) {
	i, ok := t.index[featureKey(playerID, platform)]
	if !ok {
		return domain.FeatureRow{}, false
	}
	return t.rows[i], true
}

// Rows returns the table in its stable underlying order. Callers must
// not mutate the returned slice.
func (t *FeatureTable) Rows() []domain.FeatureRow {
	return t.rows
}

func (t *FeatureTable) Len() int { return len(t.rows) }

// loadFeatureTable reads the sqlite export produced by the offline
// pipeline into memory. The file is opened read-only and closed again:
// after this the process never touches it.
func loadFeatureTable(ctx context.Context, path string) (*FeatureTable, error) {
	db, err := gorm.Open(sqlite.Open(path+"?mode=ro"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open feature table %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	var rows []domain.FeatureRow
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read feature table %s: %v: %w", path, err, domain.ErrArtifactCorrupt)
	}

	table := &FeatureTable{rows: rows, index: make(map[string]int, len(rows))}
	for i, r := range rows {
		key := featureKey(r.PlayerID, r.Platform)
		if _, dup := table.index[key]; dup {
			return nil, fmt.Errorf("feature table %s has duplicate key (%s, %s): %w",
				path, r.PlayerID, r.Platform, domain.ErrArtifactCorrupt)
		}
		table.index[key] = i
	}
	return table, nil
}
