package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gamepulse/churn-backend/internal/clients/openai"
	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/stream"
)

const analystSystemPrompt = `You are a game analytics expert specializing in player churn prediction.

You are backed by a machine learning system that:
- Predicts whether players are about to stop playing their games (churn probability 0-1)
- Explains WHY using SHAP feature importance values
- Covers multiple platforms: Chess.com, OpenDota (Dota 2), and Riot Games (LoL)

Your audience includes game designers, business stakeholders, and data science students.

Guidelines:
- Ground every claim about a specific player in the tool results provided to you
- Explain technical terms in plain English (e.g., what a SHAP value means)
- Be specific; reference actual numbers from the player's data
- Suggest concrete, actionable retention strategies when asked
- Keep responses clear and concise
- If a tool result reports that data was unavailable or a player was not found, say so plainly instead of guessing`

const routerSystemPrompt = `You route analytics questions to tools. Given the user's message, decide which tools (zero or more) must run before answering.

Available tools:
- get_player_data: fetch a specific player's features and churn prediction. Needs player_id and platform.
- explain_prediction: fetch WHY the model predicts churn for a specific player (SHAP factors). Needs player_id and platform.
- get_dataset_context: overall dataset statistics (churn rate, platforms, averages). No arguments.
- suggest_retention_strategy: concrete retention actions for a specific player. Needs player_id and platform.

Platforms are registry keys: chess_com, opendota, riot_lol.
Use an empty string for arguments a tool does not need. Select no tools for
general questions that need no data lookup.`

// Tool names exposed to the routing model. The contract between
// orchestrator and tools is typed; only the selection is model-driven.
const (
	toolPlayerData        = "get_player_data"
	toolExplainPrediction = "explain_prediction"
	toolDatasetContext    = "get_dataset_context"
	toolRetention         = "suggest_retention_strategy"
)

const maxToolCalls = 4
const maxHistoryTurns = 20

var toolRoutingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tool_calls": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool": map[string]any{
						"type": "string",
						"enum": []string{toolPlayerData, toolExplainPrediction, toolDatasetContext, toolRetention},
					},
					"player_id": map[string]any{"type": "string"},
					"platform":  map[string]any{"type": "string"},
				},
				"required":             []string{"tool", "player_id", "platform"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"tool_calls"},
	"additionalProperties": false,
}

type toolCall struct {
	Tool     string
	PlayerID string
	Platform string
}

// ChatRequest is one conversational turn. History is caller-owned;
// nothing is persisted server-side between requests.
type ChatRequest struct {
	Message       string
	PlayerContext *domain.PlayerAnalytics
	History       []domain.ConversationTurn
}

// ChatService runs one request through tool selection, tool execution,
// and streamed answer generation.
type ChatService interface {
	// Answer returns immediately; fragments arrive on the stream in
	// generation order until end-of-stream or error termination. If the
	// caller stops consuming (stream.Cancel), generation is abandoned.
	Answer(ctx context.Context, req ChatRequest) *stream.Stream
}

type chatService struct {
	llm          openai.Client
	data         DataService
	predictions  PredictionService
	explanations ExplanationService
	retention    RetentionService
	topFeatures  int
	log          *logger.Logger
}

func NewChatService(
	llm openai.Client,
	data DataService,
	predictions PredictionService,
	explanations ExplanationService,
	retention RetentionService,
	topFeatures int,
	log *logger.Logger,
) ChatService {
	if topFeatures <= 0 {
		topFeatures = 5
	}
	return &chatService{
		llm:          llm,
		data:         data,
		predictions:  predictions,
		explanations: explanations,
		retention:    retention,
		topFeatures:  topFeatures,
		log:          log.With("service", "ChatService"),
	}
}

func (s *chatService) Answer(ctx context.Context, req ChatRequest) *stream.Stream {
	st := stream.New(64)
	reqLog := s.log.With("request_id", uuid.NewString())

	go func() {
		genCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		calls := s.selectTools(genCtx, req, reqLog)
		results, err := s.executeTools(genCtx, calls)
		if err != nil {
			st.Close(err)
			return
		}

		msgs := s.buildMessages(req, results)
		_, err = s.llm.StreamText(genCtx, analystSystemPrompt, msgs, func(delta string) {
			if !st.Push(delta) {
				// Consumer disconnected; abandon generation.
				cancel()
			}
		})
		if err != nil && genCtx.Err() == nil {
			reqLog.Warn("Answer generation failed", "error", err)
			st.Close(err)
			return
		}
		st.Close(genCtx.Err())
	}()

	return st
}

// selectTools asks the routing model which tools to run. A routing
// failure degrades to zero tools rather than aborting the conversation.
func (s *chatService) selectTools(ctx context.Context, req ChatRequest, reqLog *logger.Logger) []toolCall {
	user := req.Message
	if req.PlayerContext != nil {
		user = fmt.Sprintf("(viewing player %s on %s)\n%s",
			req.PlayerContext.PlayerID, req.PlayerContext.Platform, req.Message)
	}

	obj, err := s.llm.GenerateJSON(ctx, routerSystemPrompt,
		[]openai.Message{{Role: domain.RoleUser, Content: user}},
		"tool_routing", toolRoutingSchema)
	if err != nil {
		reqLog.Warn("Tool routing failed, answering without tools", "error", err)
		return nil
	}

	rawCalls, _ := obj["tool_calls"].([]any)
	calls := make([]toolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		m, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		call := toolCall{}
		call.Tool, _ = m["tool"].(string)
		call.PlayerID, _ = m["player_id"].(string)
		call.Platform, _ = m["platform"].(string)
		if call.Tool == "" {
			continue
		}
		calls = append(calls, call)
		if len(calls) >= maxToolCalls {
			break
		}
	}
	reqLog.Debug("Tools selected", "count", len(calls))
	return calls
}

// executeTools runs the selected tools concurrently and returns their
// narrated results in routing order. Tool-level failures become text the
// model can explain; only context cancellation propagates as an error.
func (s *chatService) executeTools(ctx context.Context, calls []toolCall) ([]string, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]string, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			text := s.runTool(gctx, call)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = fmt.Sprintf("[%s(player_id=%q, platform=%q)]\n%s",
				call.Tool, call.PlayerID, call.Platform, text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *chatService) runTool(ctx context.Context, call toolCall) string {
	switch call.Tool {
	case toolPlayerData:
		return s.toolPlayerData(ctx, call)
	case toolExplainPrediction:
		return s.toolExplainPrediction(ctx, call)
	case toolDatasetContext:
		return s.toolDatasetContext(ctx)
	case toolRetention:
		return s.toolRetention(ctx, call)
	default:
		return fmt.Sprintf("Tool %q is not supported.", call.Tool)
	}
}

// narrateToolError converts the error taxonomy into text the model can
// relay; raw faults never surface into the conversation.
func narrateToolError(err error, playerID, platform string) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("Player %q was not found on platform %q.", playerID, platform)
	case errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, domain.ErrArtifactMissing):
		return "The dataset is not available yet; the offline pipeline has not produced it."
	default:
		return "The lookup failed due to an internal error."
	}
}

func (s *chatService) toolPlayerData(ctx context.Context, call toolCall) string {
	row, err := s.data.GetPlayer(ctx, call.Platform, call.PlayerID)
	if err != nil {
		return narrateToolError(err, call.PlayerID, call.Platform)
	}
	pred, err := s.predictions.PredictChurn(ctx, row.FeatureMap(), "")
	if err != nil {
		return narrateToolError(err, call.PlayerID, call.Platform)
	}
	payload := map[string]any{
		"player_id":  row.PlayerID,
		"platform":   row.Platform,
		"features":   row.FeatureMap(),
		"churned":    row.Churned,
		"prediction": pred,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "The lookup failed due to an internal error."
	}
	return string(b)
}

func (s *chatService) toolExplainPrediction(ctx context.Context, call toolCall) string {
	entries, err := s.explanations.ExplainPlayer(ctx, call.Platform, call.PlayerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "No SHAP explanation is available for this player."
		}
		return narrateToolError(err, call.PlayerID, call.Platform)
	}

	top := entries
	if len(top) > s.topFeatures {
		top = top[:s.topFeatures]
	}
	var b strings.Builder
	b.WriteString("Top factors driving this player's prediction:\n")
	for _, e := range top {
		verb := "reduces"
		if e.Direction == domain.DirectionIncreasesChurn {
			verb = "increases"
		}
		fmt.Fprintf(&b, "- %s (%+.2f): %s churn risk\n", e.Label, e.ShapValue, verb)
	}
	return b.String()
}

func (s *chatService) toolDatasetContext(ctx context.Context) string {
	summary, err := s.data.DatasetSummary(ctx)
	if err != nil {
		return narrateToolError(err, "", "")
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return "The lookup failed due to an internal error."
	}
	return string(b)
}

func (s *chatService) toolRetention(ctx context.Context, call toolCall) string {
	actions, err := s.retention.SuggestRetention(ctx, call.Platform, call.PlayerID)
	if err != nil {
		return narrateToolError(err, call.PlayerID, call.Platform)
	}
	return "Suggested retention actions:\n" + FormatRetentionActions(actions)
}

// buildMessages assembles the generation input: bounded history, the
// optional player context the caller is viewing, the user's message, and
// every tool result gathered for it.
func (s *chatService) buildMessages(req ChatRequest, toolResults []string) []openai.Message {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	msgs := make([]openai.Message, 0, len(history)+3)
	for _, turn := range history {
		role := domain.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, openai.Message{Role: role, Content: turn.Content})
	}

	if req.PlayerContext != nil {
		if b, err := json.Marshal(req.PlayerContext); err == nil {
			msgs = append(msgs, openai.Message{
				Role:    "system",
				Content: "The user is currently viewing this player's analytics:\n" + string(b),
			})
		}
	}

	msgs = append(msgs, openai.Message{Role: domain.RoleUser, Content: req.Message})

	if len(toolResults) > 0 {
		msgs = append(msgs, openai.Message{
			Role:    "system",
			Content: "Tool results gathered for this question:\n\n" + strings.Join(toolResults, "\n\n"),
		})
	}
	return msgs
}
