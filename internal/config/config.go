package config

import (
	"path/filepath"

	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/utils"
)

// Config carries every runtime setting the serving layer reads. All of it
// comes from environment variables, loaded once at startup.
type Config struct {
	Port        string
	CORSOrigins []string

	DataDir      string
	ModelsDir    string
	FeaturesPath string
	RegistryPath string

	DefaultModel string

	// Policy constants inherited from the offline training pipeline.
	// Serving must never hardcode divergent values.
	RiskLowMax      float64
	RiskHighMin     float64
	ChurnThreshold  float64
	ListPlayersMax  int
	ShapTopFeatures int
}

func Load(log *logger.Logger) Config {
	dataDir := utils.GetEnv("DATA_DIR", "data", log)
	modelsDir := utils.GetEnv("MODELS_DIR", "models", log)
	return Config{
		Port: utils.GetEnv("PORT", "8080", log),
		CORSOrigins: utils.GetEnvAsSlice("CORS_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}, log),

		DataDir:      dataDir,
		ModelsDir:    modelsDir,
		FeaturesPath: utils.GetEnv("FEATURES_PATH", filepath.Join(dataDir, "features.db"), log),
		RegistryPath: utils.GetEnv("REGISTRY_PATH", "", log),

		DefaultModel: utils.GetEnv("DEFAULT_MODEL", "ensemble", log),

		RiskLowMax:      utils.GetEnvAsFloat("RISK_LOW_MAX", 0.4, log),
		RiskHighMin:     utils.GetEnvAsFloat("RISK_HIGH_MIN", 0.7, log),
		ChurnThreshold:  utils.GetEnvAsFloat("CHURN_PREDICT_THRESHOLD", 0.5, log),
		ListPlayersMax:  utils.GetEnvAsInt("LIST_PLAYERS_MAX", 500, log),
		ShapTopFeatures: utils.GetEnvAsInt("SHAP_TOP_FEATURES", 5, log),
	}
}
