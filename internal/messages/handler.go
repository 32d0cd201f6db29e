package messages

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/middleware"
	"github.com/collabspace/backend/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/messages", h.Create)
	g.DELETE("/messages/:id", h.Delete)
	g.GET("/messages/:id", h.List)
	g.PUT("/messages/mark-all-as-read/:id", h.MarkAllRead)
	g.GET("/messages/unread-count/:id", h.UnreadCount)
}

func (h *Handler) Create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "message deleted"})
}

// List handles GET /messages/:collabId?page=&limit=.
func (h *Handler) List(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	out, err := h.svc.List(c.Request.Context(), middleware.UserID(c), id, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	n, err := h.svc.MarkAllRead(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": n})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	n, err := h.svc.UnreadCount(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": n})
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
