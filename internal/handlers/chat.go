package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gamepulse/churn-backend/internal/domain"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/services"
)

type ChatRequestBody struct {
	Message       string                    `json:"message"`
	PlayerContext *domain.PlayerAnalytics   `json:"player_context,omitempty"`
	History       []domain.ConversationTurn `json:"conversation_history,omitempty"`
}

// ChatHandler streams conversational answers as plain text chunks.
type ChatHandler struct {
	chat services.ChatService
	log  *logger.Logger
}

func NewChatHandler(chat services.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat: chat,
		log:  log.With("handler", "ChatHandler"),
	}
}

// Chat runs one conversational turn. Fragments are written in generation
// order and flushed as they arrive; if the client disconnects mid-stream
// the underlying generation is cancelled. Errors that occur before the
// first fragment produce a JSON error response; after the first fragment
// the stream simply ends.
func (h *ChatHandler) Chat(c *gin.Context) {
	var body ChatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request",
			fmt.Errorf("message is required"))
		return
	}

	ctx := c.Request.Context()
	st := h.chat.Answer(ctx, services.ChatRequest{
		Message:       body.Message,
		PlayerContext: body.PlayerContext,
		History:       body.History,
	})

	wrote := false
	for {
		select {
		case <-ctx.Done():
			st.Cancel()
			h.log.Debug("Client disconnected mid-stream")
			return
		case frag, ok := <-st.Fragments():
			if !ok {
				if err := st.Err(); err != nil {
					if wrote {
						h.log.Warn("Chat stream ended with error after partial output", "error", err)
						return
					}
					h.log.Warn("Chat stream failed", "error", err)
					RespondError(c, http.StatusBadGateway, "chat_failed", err)
				}
				return
			}
			if !wrote {
				c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
				c.Writer.Header().Set("Cache-Control", "no-cache")
				c.Writer.WriteHeader(http.StatusOK)
				wrote = true
			}
			if _, err := c.Writer.WriteString(frag); err != nil {
				st.Cancel()
				return
			}
			c.Writer.Flush()
		}
	}
}
