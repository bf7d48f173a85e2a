package domain

// FeatureColumns is the serving feature schema, in the exact order the
// models were trained on. The offline pipeline owns this order; changing
// it here without retraining breaks every prediction.
var FeatureColumns = []string{
	"games_7d",
	"games_14d",
	"games_30d",
	"playtime_hours_7d",
	"playtime_hours_14d",
	"playtime_hours_30d",
	"avg_daily_sessions_7d",
	"avg_daily_sessions_30d",
	"max_gap_days_30d",
	"games_trend_7d_vs_14d",
	"win_rate_7d",
	"win_rate_30d",
	"current_rating",
	"rating_change_30d",
	"unique_peers_30d",
	"games_with_peers_30d",
	"engagement_score",
	"days_since_last_game",
}

// FeatureRow is one player snapshot from the offline feature table.
// (player_id, platform) is unique within the table.
type FeatureRow struct {
	PlayerID string `gorm:"column:player_id" json:"player_id"`
	Platform string `gorm:"column:platform" json:"platform"`

	Games7d  float64 `gorm:"column:games_7d" json:"games_7d"`
	Games14d float64 `gorm:"column:games_14d" json:"games_14d"`
	Games30d float64 `gorm:"column:games_30d" json:"games_30d"`

	PlaytimeHours7d  float64 `gorm:"column:playtime_hours_7d" json:"playtime_hours_7d"`
	PlaytimeHours14d float64 `gorm:"column:playtime_hours_14d" json:"playtime_hours_14d"`
	PlaytimeHours30d float64 `gorm:"column:playtime_hours_30d" json:"playtime_hours_30d"`

	AvgDailySessions7d  float64 `gorm:"column:avg_daily_sessions_7d" json:"avg_daily_sessions_7d"`
	AvgDailySessions30d float64 `gorm:"column:avg_daily_sessions_30d" json:"avg_daily_sessions_30d"`
	MaxGapDays30d       float64 `gorm:"column:max_gap_days_30d" json:"max_gap_days_30d"`
	GamesTrend7dVs14d   float64 `gorm:"column:games_trend_7d_vs_14d" json:"games_trend_7d_vs_14d"`

	WinRate7d  float64 `gorm:"column:win_rate_7d" json:"win_rate_7d"`
	WinRate30d float64 `gorm:"column:win_rate_30d" json:"win_rate_30d"`

	CurrentRating  float64 `gorm:"column:current_rating" json:"current_rating"`
	RatingChange30 float64 `gorm:"column:rating_change_30d" json:"rating_change_30d"`

	UniquePeers30d    float64 `gorm:"column:unique_peers_30d" json:"unique_peers_30d"`
	GamesWithPeers30d float64 `gorm:"column:games_with_peers_30d" json:"games_with_peers_30d"`

	EngagementScore   float64 `gorm:"column:engagement_score" json:"engagement_score"`
	DaysSinceLastGame float64 `gorm:"column:days_since_last_game" json:"days_since_last_game"`

	Churned bool `gorm:"column:churned" json:"churned"`
}

func (FeatureRow) TableName() string { return "player_features" }

// FeatureMap returns the numeric feature columns keyed by name, for
// vector assembly and for the API features payload.
func (r FeatureRow) FeatureMap() map[string]float64 {
	return map[string]float64{
		"games_7d":               r.Games7d,
		"games_14d":              r.Games14d,
		"games_30d":              r.Games30d,
		"playtime_hours_7d":      r.PlaytimeHours7d,
		"playtime_hours_14d":     r.PlaytimeHours14d,
		"playtime_hours_30d":     r.PlaytimeHours30d,
		"avg_daily_sessions_7d":  r.AvgDailySessions7d,
		"avg_daily_sessions_30d": r.AvgDailySessions30d,
		"max_gap_days_30d":       r.MaxGapDays30d,
		"games_trend_7d_vs_14d":  r.GamesTrend7dVs14d,
		"win_rate_7d":            r.WinRate7d,
		"win_rate_30d":           r.WinRate30d,
		"current_rating":         r.CurrentRating,
		"rating_change_30d":      r.RatingChange30,
		"unique_peers_30d":       r.UniquePeers30d,
		"games_with_peers_30d":   r.GamesWithPeers30d,
		"engagement_score":       r.EngagementScore,
		"days_since_last_game":   r.DaysSinceLastGame,
	}
}

// PlayerSummary is the safe column subset returned by player browsing.
type PlayerSummary struct {
	PlayerID          string  `json:"player_id"`
	Platform          string  `json:"platform"`
	EngagementScore   float64 `json:"engagement_score"`
	Churned           bool    `json:"churned"`
	DaysSinceLastGame float64 `json:"days_since_last_game"`
}

// DatasetSummary is recomputed over the in-memory feature table on each
// call; it never triggers an artifact reload.
type DatasetSummary struct {
	TotalPlayers         int      `json:"total_players"`
	ChurnedCount         int      `json:"churned_count"`
	ChurnRate            float64  `json:"churn_rate"`
	Platforms            []string `json:"platforms"`
	AvgEngagementScore   float64  `json:"avg_engagement_score"`
	AvgDaysSinceLastGame float64  `json:"avg_days_since_last_game"`
}

// Risk tiers derived from churn probability. Boundaries are policy
// constants inherited from the offline pipeline, carried in config.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Prediction is the output of the prediction service.
type Prediction struct {
	ChurnProbability float64 `json:"churn_probability"`
	ChurnPredicted   bool    `json:"churn_predicted"`
	RiskLevel        string  `json:"risk_level"`
	ModelUsed        string  `json:"model_used"`
}

// SHAP attribution directions.
const (
	DirectionIncreasesChurn = "increases_churn"
	DirectionDecreasesChurn = "decreases_churn"
)

// ShapEntry is one feature's signed contribution to a player's
// prediction, paired with its human-readable label.
type ShapEntry struct {
	Feature   string  `json:"feature"`
	Label     string  `json:"label"`
	ShapValue float64 `json:"shap_value"`
	Direction string  `json:"direction"`
}

// Conversation roles accepted in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message of caller-owned chat history. Nothing
// is persisted server-side between requests.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PlayerAnalytics is the single-player analytics response: features,
// prediction, and the ranked SHAP explanation (null when no explanation
// row exists for the player).
type PlayerAnalytics struct {
	PlayerID   string         `json:"player_id"`
	Platform   string         `json:"platform"`
	Features   map[string]any `json:"features"`
	Prediction Prediction     `json:"prediction"`
	ShapValues []ShapEntry    `json:"shap_values"`
}
