package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/middleware"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/services/chain"
)

// ChainAdmin manages the chain registry and joins
type ChainAdmin interface {
	CreateChain(ctx context.Context, in chain.CreateChainInput) (*models.Chain, error)
	ListChains(ctx context.Context, page models.PageRequest) (*models.ChainList, error)
	GetChain(ctx context.Context, id string) (*models.Chain, error)
	GetChainBySlug(ctx context.Context, slug string) (*models.Chain, error)
	UpdateChain(ctx context.Context, id string, in chain.UpdateChainInput) (*models.Chain, error)
	TogglePause(ctx context.Context, id string) (*models.Chain, error)
	DeleteChain(ctx context.Context, id string) (*models.Chain, error)
	UpdateStatus(ctx context.Context, id, status string) (*models.Chain, error)
	Join(ctx context.Context, chainID, userID string) (*models.Node, error)
}

// ChainHandler handles chain requests
type ChainHandler struct {
	chains ChainAdmin
	log    *logger.Logger
}

// NewChainHandler creates a new chain handler
func NewChainHandler(chains ChainAdmin, log *logger.Logger) *ChainHandler {
	return &ChainHandler{chains: chains, log: log}
}

// CreateChain creates a chain owned by the body's user, or the caller
func (h *ChainHandler) CreateChain(c *gin.Context) {
	var in chain.CreateChainInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if in.Owner == "" {
		in.Owner = middleware.CurrentUserID(c)
	}
	created, err := h.chains.CreateChain(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": created})
}

// ListChains lists one page of chains with their investment totals
func (h *ChainHandler) ListChains(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		respondBadRequest(c, "invalid page")
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		respondBadRequest(c, "invalid limit")
		return
	}
	list, err := h.chains.ListChains(c.Request.Context(), models.PageRequest{Page: page, Limit: limit})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": list})
}

// GetChain returns one chain
func (h *ChainHandler) GetChain(c *gin.Context) {
	h.respond(c, http.StatusOK)(h.chains.GetChain(c.Request.Context(), c.Param("id")))
}

// GetChainBySlug returns one chain by slug
func (h *ChainHandler) GetChainBySlug(c *gin.Context) {
	h.respond(c, http.StatusOK)(h.chains.GetChainBySlug(c.Request.Context(), c.Param("slug")))
}

// UpdateChain edits the name, icon or parent percentage
func (h *ChainHandler) UpdateChain(c *gin.Context) {
	var in chain.UpdateChainInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	h.respond(c, http.StatusOK)(h.chains.UpdateChain(c.Request.Context(), c.Param("id"), in))
}

// TogglePause pauses or resumes joins
func (h *ChainHandler) TogglePause(c *gin.Context) {
	h.respond(c, http.StatusOK)(h.chains.TogglePause(c.Request.Context(), c.Param("id")))
}

// DeleteChain soft-deletes a chain
func (h *ChainHandler) DeleteChain(c *gin.Context) {
	h.respond(c, http.StatusOK)(h.chains.DeleteChain(c.Request.Context(), c.Param("id")))
}

// UpdateStatus sets Enabled, Disabled or Blocked
func (h *ChainHandler) UpdateStatus(c *gin.Context) {
	h.respond(c, http.StatusOK)(h.chains.UpdateStatus(c.Request.Context(), c.Param("id"), c.Param("status")))
}

// Join places the caller into the chain
func (h *ChainHandler) Join(c *gin.Context) {
	node, err := h.chains.Join(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": node})
}

func (h *ChainHandler) respond(c *gin.Context, status int) func(*models.Chain, error) {
	return func(ch *models.Chain, err error) {
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(status, gin.H{"status": "success", "data": ch})
	}
}
