package notifications

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/middleware"
	"github.com/collabspace/backend/pkg/response"
)

// Handler serves the notification inbox.
type Handler struct {
	inbox *Inbox
}

// NewHandler creates a notification handler.
func NewHandler(inbox *Inbox) *Handler {
	return &Handler{inbox: inbox}
}

// Register mounts the routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/notifications", h.List)
	g.GET("/notifications/unread-count", h.UnreadCount)
	g.PATCH("/notifications/read-all", h.MarkAllRead)
	g.PATCH("/notifications/:id/read", h.MarkRead)
}

// List handles GET /notifications?page=&limit=.
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	out, err := h.inbox.List(c.Request.Context(), middleware.UserID(c), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.inbox.UnreadCount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": n})
}

// MarkRead handles PATCH /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	n, err := h.inbox.MarkRead(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, n)
}

// MarkAllRead handles PATCH /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.inbox.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": n})
}
