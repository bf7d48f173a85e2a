package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
)

// retentionPlaybook maps churn-driving features to interventions. A
// deterministic lookup, not a model call: the same top factors always
// produce the same suggestions.
var retentionPlaybook = []struct {
	features []string
	action   string
}{
	{
		features: []string{"days_since_last_game"},
		action:   "Send a re-engagement notification or email; the player has been away and a nudge is the cheapest win.",
	},
	{
		features: []string{"games_7d", "games_trend_7d_vs_14d"},
		action:   "Offer a time-limited reward for logging in this week to rebuild the play habit.",
	},
	{
		features: []string{"win_rate_7d", "win_rate_30d"},
		action:   "Review matchmaking for this player; a losing streak may be driving frustration.",
	},
	{
		features: []string{"unique_peers_30d", "games_with_peers_30d"},
		action:   "Promote social and team features; suggest finding regular teammates.",
	},
	{
		features: []string{"max_gap_days_30d"},
		action:   "Introduce streak rewards; the player already takes long breaks between sessions.",
	},
	{
		features: []string{"engagement_score"},
		action:   "Target the player with a broad engagement campaign (new content, events, personalized challenges).",
	},
}

var genericRetentionActions = []string{
	"Send a re-engagement notification or email.",
	"Offer a time-limited reward for returning this week.",
	"Promote social and team features to build play habits around other people.",
}

// RetentionService maps a player's top churn-driving attribution factors
// to concrete retention actions.
type RetentionService interface {
	SuggestRetention(ctx context.Context, platform, playerID string) ([]string, error)
}

type retentionService struct {
	explanations ExplanationService
	topFactors   int
	log          *logger.Logger
}

func NewRetentionService(explanations ExplanationService, topFactors int, log *logger.Logger) RetentionService {
	if topFactors <= 0 {
		topFactors = 3
	}
	return &retentionService{
		explanations: explanations,
		topFactors:   topFactors,
		log:          log.With("service", "RetentionService"),
	}
}

// SuggestRetention looks at the player's strongest churn-increasing
// factors and returns the matching playbook actions, deduplicated, in
// factor-impact order. Players without a precomputed explanation get the
// generic playbook rather than an error.
func (s *retentionService) SuggestRetention(ctx context.Context, platform, playerID string) ([]string, error) {
	entries, err := s.explanations.ExplainPlayer(ctx, platform, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrDataUnavailable) {
			s.log.Debug("No explanation for player, using generic playbook",
				"platform", platform, "player_id", playerID)
			return append([]string(nil), genericRetentionActions...), nil
		}
		return nil, err
	}

	actions := []string{}
	seen := map[string]bool{}
	picked := 0
	for _, entry := range entries {
		if entry.Direction != domain.DirectionIncreasesChurn {
			continue
		}
		if action, ok := lookupAction(entry.Feature); ok && !seen[action] {
			actions = append(actions, action)
			seen[action] = true
		}
		picked++
		if picked >= s.topFactors {
			break
		}
	}

	if len(actions) == 0 {
		return append([]string(nil), genericRetentionActions...), nil
	}
	return actions, nil
}

func lookupAction(feature string) (string, bool) {
	for _, rule := range retentionPlaybook {
		for _, f := range rule.features {
			if f == feature {
				return rule.action, true
			}
		}
	}
	return "", false
}

// FormatRetentionActions renders the action list as the bulleted text
// the orchestrator feeds to the model.
func FormatRetentionActions(actions []string) string {
	out := ""
	for _, a := range actions {
		out += fmt.Sprintf("- %s\n", a)
	}
	return out
}
