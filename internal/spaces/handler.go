package spaces

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/middleware"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/pkg/response"
)

// Handler serves /collabs.
type Handler struct {
	svc *Service
}

// NewHandler creates a collab handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	c := g.Group("/collabs")
	c.POST("", h.Create)
	c.GET("/user", h.ListForUser)
	c.GET("/:id", h.Get)
	c.PATCH("/:id", h.Update)
	c.DELETE("/:id", h.Delete)
	c.POST("/:id/members", h.AddMembers)
	c.POST("/:id/addUser", h.JoinPublic)
	c.POST("/:id/join", h.AcceptInvite)
	c.POST("/:id/leave", h.Leave)
	c.POST("/:id/invitations", h.SendInvitations)
	c.GET("/:id/invitations", h.Invitations)
}

type membersRequest struct {
	Members []uuid.UUID `json:"members" binding:"required"`
}

type invitationsRequest struct {
	Emails []string `json:"emails" binding:"required,dive,email"`
}

func (h *Handler) Create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, out)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	var in UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.UserID(c), id, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "collab deleted"})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	out, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) ListForUser(c *gin.Context) {
	out, err := h.svc.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) AddMembers(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	var req membersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	added, err := h.svc.AddMembers(c.Request.Context(), middleware.UserID(c), id, req.Members)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"added": added})
}

func (h *Handler) JoinPublic(c *gin.Context) {
	h.membershipAction(c, h.svc.JoinPublic)
}

func (h *Handler) Leave(c *gin.Context) {
	h.membershipAction(c, h.svc.Leave)
}

// AcceptInvite uses the email carried by the caller's token.
func (h *Handler) AcceptInvite(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	out, err := h.svc.AcceptInvite(c.Request.Context(), middleware.UserID(c), middleware.Email(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) SendInvitations(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	var req invitationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.SendInvitations(c.Request.Context(), middleware.UserID(c), id, req.Emails)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, out)
}

func (h *Handler) Invitations(c *gin.Context) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	out, err := h.svc.Invitations(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) membershipAction(c *gin.Context, fn func(ctx context.Context, userID, spaceID uuid.UUID) (*models.SpaceDetail, error)) {
	id, ok := spaceID(c)
	if !ok {
		return
	}
	out, err := fn(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func spaceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid collab id")
		return uuid.Nil, false
	}
	return id, true
}
