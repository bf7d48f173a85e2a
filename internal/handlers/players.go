package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/registry"
	"github.com/gamepulse/churn-backend/internal/services"
)

const defaultListLimit = 50

// PlayerHandler serves the read-side analytics endpoints: platform and
// model catalogs, dataset summary, player search, and the combined
// per-player analytics view.
type PlayerHandler struct {
	reg          *registry.Registry
	data         services.DataService
	predictions  services.PredictionService
	explanations services.ExplanationService
	maxLimit     int
	log          *logger.Logger
}

func NewPlayerHandler(
	reg *registry.Registry,
	data services.DataService,
	predictions services.PredictionService,
	explanations services.ExplanationService,
	maxLimit int,
	log *logger.Logger,
) *PlayerHandler {
	return &PlayerHandler{
		reg:          reg,
		data:         data,
		predictions:  predictions,
		explanations: explanations,
		maxLimit:     maxLimit,
		log:          log.With("handler", "PlayerHandler"),
	}
}

// ListGames returns the supported platform catalog.
func (h *PlayerHandler) ListGames(c *gin.Context) {
	RespondOK(c, gin.H{"games": h.reg.Platforms()})
}

// ListModels returns the model catalog and the configured default.
func (h *PlayerHandler) ListModels(c *gin.Context) {
	RespondOK(c, gin.H{
		"models":        h.reg.Models(),
		"default_model": h.reg.DefaultModel(),
	})
}

// Summary returns dataset-wide statistics.
func (h *PlayerHandler) Summary(c *gin.Context) {
	summary, err := h.data.DatasetSummary(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, summary)
}

// Search lists players, optionally filtered by platform.
func (h *PlayerHandler) Search(c *gin.Context) {
	platform := c.Query("platform")
	if platform != "" {
		if _, err := h.reg.Platform(platform); err != nil {
			RespondDomainError(c, err)
			return
		}
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.maxLimit {
			RespondError(c, http.StatusBadRequest, "invalid_request",
				fmt.Errorf("limit must be between 1 and %d, got %q", h.maxLimit, raw))
			return
		}
		limit = n
	}

	players, err := h.data.ListPlayers(c.Request.Context(), platform, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"players": players,
		"count":   len(players),
	})
}

// Analytics returns a single player's features, churn prediction, and
// SHAP explanation. The platform is validated against the registry
// before any artifact is touched, so an unknown platform is a 404 even
// when the dataset has not been produced yet. A missing explanation row
// degrades to a null shap_values field rather than failing the request.
func (h *PlayerHandler) Analytics(c *gin.Context) {
	platform := c.Param("platform")
	playerID := c.Param("player_id")

	if _, err := h.reg.Platform(platform); err != nil {
		RespondDomainError(c, err)
		return
	}

	ctx := c.Request.Context()
	row, err := h.data.GetPlayer(ctx, platform, playerID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	pred, err := h.predictions.PredictChurn(ctx, row.FeatureMap(), c.Query("model_id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	var shap []domain.ShapEntry
	shap, err = h.explanations.ExplainPlayer(ctx, platform, playerID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrDataUnavailable) {
			RespondDomainError(c, err)
			return
		}
		h.log.Debug("No explanation for player", "platform", platform, "player_id", playerID)
		shap = nil
	}

	features := make(map[string]any, len(domain.FeatureColumns)+1)
	for name, value := range row.FeatureMap() {
		features[name] = value
	}
	features["churned"] = row.Churned

	RespondOK(c, domain.PlayerAnalytics{
		PlayerID:   row.PlayerID,
		Platform:   row.Platform,
		Features:   features,
		Prediction: pred,
		ShapValues: shap,
	})
}
