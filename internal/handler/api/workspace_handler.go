package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"pressroom/internal/activity"
	"pressroom/internal/models"
	"pressroom/internal/repository"
)

type WorkspaceHandler struct {
	workspaces *repository.WorkspaceRepository
	feed       *activity.Feed
	logger     *zap.Logger
}

func NewWorkspaceHandler(workspaces *repository.WorkspaceRepository, feed *activity.Feed, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, feed: feed, logger: logger}
}

// Create handles POST /api/workspaces.
func (h *WorkspaceHandler) Create(c echo.Context) error {
	var req models.CreateWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Name == "" {
		return errorResponse(c, http.StatusBadRequest, "name is required")
	}

	ws := &models.Workspace{Name: req.Name, Slug: req.Slug}
	if err := h.workspaces.Create(ws); err != nil {
		h.logger.Error("Failed to create workspace", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to create workspace")
	}
	return successResponse(c, "Workspace created", ws)
}

// List handles GET /api/workspaces.
func (h *WorkspaceHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	page := queryInt(c, "page", 1)

	workspaces, total, err := h.workspaces.FindAll(limit, page)
	if err != nil {
		h.logger.Error("Failed to list workspaces", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve workspaces")
	}
	return successResponse(c, "Successful", paginatedResponse(workspaces, total, page, limit))
}

// Get handles GET /api/workspaces/:workspace_id.
func (h *WorkspaceHandler) Get(c echo.Context) error {
	ws, err := h.workspaces.FindByID(c.Param("workspace_id"))
	if errors.Is(err, repository.ErrWorkspaceNotFound) {
		return errorResponse(c, http.StatusNotFound, "Workspace not found")
	}
	if err != nil {
		h.logger.Error("Failed to load workspace", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve workspace")
	}
	return successResponse(c, "Successful", ws)
}

// Activities handles GET /api/workspaces/:workspace_id/activities?limit=N:
// the cross-job recent-activity feed for the dashboard.
func (h *WorkspaceHandler) Activities(c echo.Context) error {
	workspaceID := c.Param("workspace_id")
	if _, err := h.workspaces.FindByID(workspaceID); err != nil {
		return errorResponse(c, http.StatusNotFound, "Workspace not found")
	}
	limit := queryInt(c, "limit", 20)

	entries, err := h.feed.Recent(c.Request().Context(), workspaceID, limit)
	if err != nil {
		h.logger.Error("Failed to load activity feed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve activities")
	}
	return successResponse(c, "Successful", entries)
}
