package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/field-service/internal/assistant"
	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/model"
)

type ChatHandler struct {
	chat *assistant.Chatter
}

func NewChatHandler(chat *assistant.Chatter) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
}

func bindChat(c *gin.Context) (chatRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return req, false
	}
	for _, m := range req.Messages {
		if !m.Role.Valid() {
			badRequest(c, "invalid role: "+string(m.Role))
			return req, false
		}
	}
	if _, ok := model.LastUserMessage(req.Messages); !ok {
		badRequest(c, "no user message found")
		return req, false
	}
	return req, true
}

// Chat — одиночный вопрос без памяти.
func (h *ChatHandler) Chat(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}
	reply, err := h.chat.Reply(c.Request.Context(), req.Messages)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply})
}

// LangChat — диалог с памятью; без session_id создаётся новая сессия.
func (h *ChatHandler) LangChat(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	reply, err := h.chat.Converse(c.Request.Context(), req.SessionID, req.Messages)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply, "session_id": req.SessionID})
}

// LangChatStream отдаёт ответ как text/event-stream: события chunk, затем done или error.
func (h *ChatHandler) LangChatStream(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Session-ID", req.SessionID)
	c.Status(http.StatusOK)

	_, err := h.chat.ConverseStream(c.Request.Context(), req.SessionID, req.Messages, func(chunk string) error {
		c.SSEvent("chunk", chunk)
		c.Writer.Flush()
		return c.Request.Context().Err()
	})
	if err != nil {
		c.SSEvent("error", err.Error())
		c.Writer.Flush()
		c.Abort()
		return
	}
	c.SSEvent("done", gin.H{"session_id": req.SessionID})
	c.Writer.Flush()
}

type sessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// Cleanup: 200, если сессия существовала, иначе 404.
func (h *ChatHandler) Cleanup(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "session_id is required")
		return
	}
	existed, err := h.chat.Clear(c.Request.Context(), req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !existed {
		respondError(c, errs.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "session_id": req.SessionID})
}

func (h *ChatHandler) Messages(c *gin.Context) {
	id := c.Param("id")
	msgs, err := h.chat.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "messages": msgs})
}
