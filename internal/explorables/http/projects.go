package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/explorable-research/explorable-backend/internal/auth"
	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

func currentUser(c *gin.Context) (string, bool) {
	userID := auth.UserID(c)
	if userID == "" {
		writeError(c, "authenticate", domain.NewError(domain.CodeUnauthorized, "user not authenticated"))
		return "", false
	}
	return userID, true
}

func (h *Handler) create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := bindCreate(c, userID)
	if err != nil {
		writeError(c, "create_project", err)
		return
	}

	p, err := h.pipeline.CreateAsync(c.Request.Context(), req)
	if err != nil {
		writeError(c, "create_project", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": p.ID, "status": p.Status})
}

func (h *Handler) createSync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := bindCreate(c, userID)
	if err != nil {
		writeError(c, "create_project_sync", err)
		return
	}

	p, err := h.pipeline.CreateSync(c.Request.Context(), req)
	if err != nil {
		writeError(c, "create_project_sync", err)
		return
	}
	c.JSON(http.StatusOK, p.Record())
}

func (h *Handler) continueAsync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := bindContinue(c, userID, c.Param("id"))
	if err != nil {
		writeError(c, "continue_project", err)
		return
	}

	p, err := h.pipeline.ContinueAsync(c.Request.Context(), req)
	if err != nil {
		writeError(c, "continue_project", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": p.ID, "status": p.Status})
}

func (h *Handler) continueSync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := bindContinue(c, userID, c.Param("id"))
	if err != nil {
		writeError(c, "continue_project_sync", err)
		return
	}

	p, err := h.pipeline.ContinueSync(c.Request.Context(), req)
	if err != nil {
		writeError(c, "continue_project_sync", err)
		return
	}
	c.JSON(http.StatusOK, p.Record())
}

func (h *Handler) status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rec, err := h.pipeline.Status(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, "get_project_status", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) list(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	items, err := h.pipeline.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		writeError(c, "list_projects", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": items, "limit": limit, "offset": offset})
}

func (h *Handler) delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.pipeline.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, "delete_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
