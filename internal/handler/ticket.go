package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/field-service/internal/gateway"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/psds-microservice/field-service/internal/service"
)

// TicketGateway — операции над тикетами, которые нужны HTTP-слою.
type TicketGateway interface {
	List(ctx context.Context, f service.ListFilter) ([]model.Ticket, int64, error)
	Get(ctx context.Context, id string) (*model.Ticket, error)
	Create(ctx context.Context, t *model.Ticket) (*model.Ticket, error)
	Update(ctx context.Context, id string, u model.TicketUpdate) (*model.Ticket, error)
	Close(ctx context.Context, id, solution, result string) (*model.Ticket, error)
	AddImage(ctx context.Context, id, url string) (*model.Ticket, error)
	FindSimilar(ctx context.Context, id string) ([]gateway.SimilarMatch, error)
}

type TicketHandler struct {
	gw TicketGateway
}

func NewTicketHandler(gw TicketGateway) *TicketHandler {
	return &TicketHandler{gw: gw}
}

type createTicketRequest struct {
	ID          string   `json:"id"`
	ElevatorID  string   `json:"elevator_id" binding:"required"`
	Location    string   `json:"location" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Priority    string   `json:"priority" binding:"required"`
	Images      []string `json:"images"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	t, err := h.gw.Create(c.Request.Context(), &model.Ticket{
		ID:          req.ID,
		ElevatorID:  req.ElevatorID,
		Location:    req.Location,
		Description: req.Description,
		Priority:    model.TicketPriority(req.Priority),
		Images:      req.Images,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.gw.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// List: по умолчанию только Pending; status=all — все тикеты.
func (h *TicketHandler) List(c *gin.Context) {
	f := service.ListFilter{Status: string(model.TicketStatusPending)}
	switch v := c.Query("status"); {
	case strings.EqualFold(v, "all"):
		f.Status = ""
	case v != "":
		f.Status = v
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			f.Offset = parsed
		}
	}
	f.OrderDesc = c.Query("order") == "desc"

	items, total, err := h.gw.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []model.Ticket{}
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, items)
}

type closeTicketRequest struct {
	Solution string `json:"solution"`
	Result   string `json:"result"`
}

// Close (PUT /tickets/:id) закрывает тикет; повторный вызов возвращает прежнее состояние.
// Тело необязательно: без него solution и result остаются пустыми.
func (h *TicketHandler) Close(c *gin.Context) {
	var req closeTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.gw.Close(c.Request.Context(), c.Param("id"), req.Solution, req.Result)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Update(c *gin.Context) {
	var req model.TicketUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.gw.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type addImageRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *TicketHandler) AddImage(c *gin.Context) {
	var req addImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "url is required")
		return
	}
	t, err := h.gw.AddImage(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Similar(c *gin.Context) {
	matches, err := h.gw.FindSimilar(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if matches == nil {
		matches = []gateway.SimilarMatch{}
	}
	c.JSON(http.StatusOK, matches)
}
