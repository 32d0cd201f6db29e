package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/middleware"
	"github.com/collabspace/backend/pkg/response"
)

// OwnerCheck fails unless userID owns the space. *spaces.Service implements it.
type OwnerCheck interface {
	RequireOwner(ctx context.Context, userID, spaceID uuid.UUID) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   *Repository
	owners OwnerCheck
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository, owners OwnerCheck) *Handler {
	return &Handler{repo: repo, owners: owners}
}

// ListBySpace handles GET /collabs/:id/emails. Owner only.
func (h *Handler) ListBySpace(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid collab id")
		return
	}
	ctx := c.Request.Context()
	if err := h.owners.RequireOwner(ctx, middleware.UserID(c), spaceID); err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.repo.ListBySpace(ctx, spaceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}
