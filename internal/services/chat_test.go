package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gamepulse/churn-backend/internal/clients/openai"
	"github.com/gamepulse/churn-backend/internal/domain"
)

type fakeLLM struct {
	routing    map[string]any
	routingErr error
	chunks     []string
	streamErr  error

	routingMsgs []openai.Message
	streamMsgs  []openai.Message
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system string, msgs []openai.Message, schemaName string, schema map[string]any) (map[string]any, error) {
	f.routingMsgs = msgs
	if f.routingErr != nil {
		return nil, f.routingErr
	}
	return f.routing, nil
}

func (f *fakeLLM) StreamText(ctx context.Context, system string, msgs []openai.Message, onDelta func(delta string)) (string, error) {
	f.streamMsgs = msgs
	if f.streamErr != nil {
		return "", f.streamErr
	}
	for _, c := range f.chunks {
		onDelta(c)
	}
	return strings.Join(f.chunks, ""), nil
}

// blockingLLM streams until its context is cancelled.
type blockingLLM struct {
	fakeLLM
}

func (f *blockingLLM) StreamText(ctx context.Context, system string, msgs []openai.Message, onDelta func(delta string)) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			onDelta("x")
		}
	}
}

type fakeData struct {
	row domain.FeatureRow
	err error
}

func (f *fakeData) GetPlayer(ctx context.Context, platform, playerID string) (domain.FeatureRow, error) {
	if f.err != nil {
		return domain.FeatureRow{}, f.err
	}
	return f.row, nil
}

func (f *fakeData) ListPlayers(ctx context.Context, platform string, limit int) ([]domain.PlayerSummary, error) {
	return nil, nil
}

func (f *fakeData) DatasetSummary(ctx context.Context) (domain.DatasetSummary, error) {
	if f.err != nil {
		return domain.DatasetSummary{}, f.err
	}
	return domain.DatasetSummary{TotalPlayers: 900, ChurnedCount: 450, ChurnRate: 0.5}, nil
}

type fakePredictions struct {
	pred domain.Prediction
	err  error
}

func (f *fakePredictions) PredictChurn(ctx context.Context, features map[string]float64, modelID string) (domain.Prediction, error) {
	if f.err != nil {
		return domain.Prediction{}, f.err
	}
	return f.pred, nil
}

type fakeRetention struct {
	actions []string
	err     error
}

func (f *fakeRetention) SuggestRetention(ctx context.Context, platform, playerID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.actions, nil
}

func routingFor(calls ...map[string]any) map[string]any {
	anyCalls := make([]any, len(calls))
	for i, c := range calls {
		anyCalls[i] = c
	}
	return map[string]any{"tool_calls": anyCalls}
}

func newChatService(t *testing.T, llm openai.Client, data DataService, preds PredictionService, expl ExplanationService, ret RetentionService) ChatService {
	t.Helper()
	return NewChatService(llm, data, preds, expl, ret, 5, testLog(t))
}

func drain(t *testing.T, ctx context.Context, svc ChatService, req ChatRequest) (string, error) {
	t.Helper()
	st := svc.Answer(ctx, req)
	var b strings.Builder
	for f := range st.Fragments() {
		b.WriteString(f)
	}
	return b.String(), st.Err()
}

func TestAnswerStreamsGeneratedText(t *testing.T) {
	llm := &fakeLLM{
		routing: routingFor(map[string]any{"tool": "get_player_data", "player_id": "player_0", "platform": "chess_com"}),
		chunks:  []string{"This ", "player ", "is ", "high ", "risk."},
	}
	data := &fakeData{row: domain.FeatureRow{PlayerID: "player_0", Platform: "chess_com", EngagementScore: 72.3}}
	preds := &fakePredictions{pred: domain.Prediction{ChurnProbability: 0.83, ChurnPredicted: true, RiskLevel: domain.RiskHigh, ModelUsed: "ensemble"}}
	svc := newChatService(t, llm, data, preds, &stubExplanations{}, &fakeRetention{})

	got, err := drain(t, context.Background(), svc, ChatRequest{Message: "Is player_0 at risk?"})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "This player is high risk." {
		t.Fatalf("reassembled answer: got %q", got)
	}

	last := llm.streamMsgs[len(llm.streamMsgs)-1]
	if last.Role != "system" || !strings.Contains(last.Content, "get_player_data") {
		t.Fatalf("tool results not delivered to generation: %+v", last)
	}
	if !strings.Contains(last.Content, `"churn_probability":0.83`) {
		t.Fatalf("prediction missing from tool results: %q", last.Content)
	}
	if !strings.Contains(last.Content, `"player_id":"player_0"`) {
		t.Fatalf("player data missing from tool results: %q", last.Content)
	}
}

func TestAnswerNarratesToolFailures(t *testing.T) {
	llm := &fakeLLM{
		routing: routingFor(map[string]any{"tool": "get_player_data", "player_id": "ghost", "platform": "chess_com"}),
		chunks:  []string{"I could not find that player."},
	}
	data := &fakeData{err: domain.ErrNotFound}
	svc := newChatService(t, llm, data, &fakePredictions{}, &stubExplanations{}, &fakeRetention{})

	_, err := drain(t, context.Background(), svc, ChatRequest{Message: "Tell me about ghost"})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	last := llm.streamMsgs[len(llm.streamMsgs)-1]
	if !strings.Contains(last.Content, "was not found") {
		t.Fatalf("player miss not narrated: %q", last.Content)
	}
}

func TestAnswerRoutingFailureDegradesToNoTools(t *testing.T) {
	llm := &fakeLLM{
		routingErr: errors.New("router down"),
		chunks:     []string{"Happy to help with churn questions."},
	}
	svc := newChatService(t, llm, &fakeData{}, &fakePredictions{}, &stubExplanations{}, &fakeRetention{})

	got, err := drain(t, context.Background(), svc, ChatRequest{Message: "What can you do?"})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "Happy to help with churn questions." {
		t.Fatalf("answer: got %q", got)
	}

	last := llm.streamMsgs[len(llm.streamMsgs)-1]
	if last.Role != domain.RoleUser {
		t.Fatalf("no-tools generation should end with the user turn, got role %q", last.Role)
	}
}

func TestAnswerCarriesHistoryAndPlayerContext(t *testing.T) {
	llm := &fakeLLM{routing: routingFor(), chunks: []string{"ok"}}
	svc := newChatService(t, llm, &fakeData{}, &fakePredictions{}, &stubExplanations{}, &fakeRetention{})

	req := ChatRequest{
		Message: "And what should we do about it?",
		History: []domain.ConversationTurn{
			{Role: domain.RoleUser, Content: "Is player_0 churning?"},
			{Role: domain.RoleAssistant, Content: "Likely yes, 83% probability."},
		},
		PlayerContext: &domain.PlayerAnalytics{PlayerID: "player_0", Platform: "chess_com"},
	}
	if _, err := drain(t, context.Background(), svc, req); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if len(llm.streamMsgs) != 4 {
		t.Fatalf("message count: want=4 got=%d", len(llm.streamMsgs))
	}
	if llm.streamMsgs[0].Role != domain.RoleUser || llm.streamMsgs[1].Role != domain.RoleAssistant {
		t.Fatalf("history order lost: %+v", llm.streamMsgs[:2])
	}
	if !strings.Contains(llm.streamMsgs[2].Content, `"player_id":"player_0"`) {
		t.Fatalf("player context missing: %q", llm.streamMsgs[2].Content)
	}
	if llm.streamMsgs[3].Content != req.Message {
		t.Fatalf("user turn: got %q", llm.streamMsgs[3].Content)
	}
}

func TestAnswerGenerationFailureTerminatesStreamWithError(t *testing.T) {
	llm := &fakeLLM{routing: routingFor(), streamErr: errors.New("upstream 500")}
	svc := newChatService(t, llm, &fakeData{}, &fakePredictions{}, &stubExplanations{}, &fakeRetention{})

	got, err := drain(t, context.Background(), svc, ChatRequest{Message: "hello"})
	if got != "" {
		t.Fatalf("output on failed generation: got %q", got)
	}
	if err == nil {
		t.Fatal("stream error: want non-nil got nil")
	}
}

func TestAnswerConsumerCancelStopsGeneration(t *testing.T) {
	llm := &blockingLLM{}
	llm.routing = routingFor()
	svc := newChatService(t, llm, &fakeData{}, &fakePredictions{}, &stubExplanations{}, &fakeRetention{})

	st := svc.Answer(context.Background(), ChatRequest{Message: "stream forever"})
	if _, ok := <-st.Fragments(); !ok {
		t.Fatal("expected at least one fragment")
	}
	st.Cancel()

	done := make(chan struct{})
	go func() {
		for range st.Fragments() {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after Cancel")
	}
	if st.Err() == nil {
		t.Fatal("cancelled stream: want non-nil Err")
	}
}
