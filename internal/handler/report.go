package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/field-service/internal/assistant"
	"github.com/psds-microservice/field-service/internal/gateway"
	"github.com/psds-microservice/field-service/internal/model"
)

type ReportGateway interface {
	Report(ctx context.Context, ticketID, sessionID string) (assistant.ReportResult, error)
	AnalyzeTelemetry(ctx context.Context, readings []model.TelemetryReading) ([]gateway.TelemetryOutcome, error)
}

type ReportHandler struct {
	gw ReportGateway
}

func NewReportHandler(gw ReportGateway) *ReportHandler {
	return &ReportHandler{gw: gw}
}

type reportRequest struct {
	TicketID  string `json:"ticket_id"`
	SessionID string `json:"session_id"`
}

// Generate строит отчёт по тикету и истории сессии. Без ticket_id
// используется session_id: клиенты открывают сессию с id тикета.
func (h *ReportHandler) Generate(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if req.TicketID == "" {
		req.TicketID = req.SessionID
	}
	if req.TicketID == "" {
		badRequest(c, "ticket_id or session_id is required")
		return
	}
	res, err := h.gw.Report(c.Request.Context(), req.TicketID, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Failed() {
		c.JSON(http.StatusBadGateway, gin.H{"error": res.Error})
		return
	}
	c.JSON(http.StatusOK, res.Report)
}

type telemetryRequest struct {
	Readings []model.TelemetryReading `json:"readings" binding:"required"`
}

func (h *ReportHandler) AnalyzeTelemetry(c *gin.Context) {
	var req telemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "readings are required")
		return
	}
	out, err := h.gw.AnalyzeTelemetry(c.Request.Context(), req.Readings)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
