package registry

// Built-in catalogs. To support a new platform or model: train/collect it
// in the offline pipeline, drop the artifact in place, and add an entry
// here (or in the REGISTRY_PATH overlay file). Nothing else changes.

var builtinPlatforms = []PlatformConfig{
	{
		ID:              "chess_com",
		DisplayName:     "Chess.com",
		RequiresAPIKey:  false,
		PlayerIDLabel:   "Username",
		PlayerIDExample: "hikaru",
	},
	{
		ID:              "opendota",
		DisplayName:     "OpenDota (Dota 2)",
		RequiresAPIKey:  false,
		PlayerIDLabel:   "Account ID",
		PlayerIDExample: "87278757",
	},
	{
		ID:              "riot_lol",
		DisplayName:     "Riot Games (League of Legends)",
		RequiresAPIKey:  true,
		PlayerIDLabel:   "Riot ID (name#tag)",
		PlayerIDExample: "Faker#KR1",
	},
}

var builtinModels = []ModelConfig{
	{
		ID:          "ensemble",
		DisplayName: "Soft-Voting Ensemble (Recommended)",
		Description: "Combines XGBoost, LightGBM, CatBoost, and Logistic Regression. " +
			"Each model votes and the average probability wins.",
		ArtifactFile: "ensemble.json",
	},
	{
		ID:           "xgboost",
		DisplayName:  "XGBoost",
		Description:  "Gradient-boosted decision trees. Fast and accurate on tabular data.",
		ArtifactFile: "xgboost.json",
	},
	{
		ID:           "lightgbm",
		DisplayName:  "LightGBM",
		Description:  "Similar to XGBoost but faster on larger datasets (histogram-based splitting).",
		ArtifactFile: "lightgbm.json",
	},
	{
		ID:           "catboost",
		DisplayName:  "CatBoost",
		Description:  "Gradient boosting by Yandex. Needs less hyperparameter tuning.",
		ArtifactFile: "catboost.json",
	},
	{
		ID:           "logistic_regression",
		DisplayName:  "Logistic Regression",
		Description:  "Simple linear model. Most interpretable but less accurate on complex patterns.",
		ArtifactFile: "logistic_regression.json",
	},
}
