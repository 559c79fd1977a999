package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/middleware"
	"github.com/treechain/backend/internal/models"
)

// NodeQuerier answers the node queries
type NodeQuerier interface {
	GetUserNodesAcrossChains(ctx context.Context, q models.UserNodesQuery) (*models.UserNodesResult, error)
	GetTopNNodes(ctx context.Context, n int) ([]models.LeveledNode, error)
	FilterNodes(ctx context.Context, userID, sortField string) ([]models.NodeRow, error)
}

// NodeHandler handles node query requests
type NodeHandler struct {
	nodes NodeQuerier
	log   *logger.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(nodes NodeQuerier, log *logger.Logger) *NodeHandler {
	return &NodeHandler{nodes: nodes, log: log}
}

// filterRequest is the body of the filter-nodes request
type filterRequest struct {
	Sort string `json:"sort"`
}

// GetUserNodes lists one page of a user's nodes across every chain
func (h *NodeHandler) GetUserNodes(c *gin.Context) {
	userID, ok := h.authorizeUser(c)
	if !ok {
		return
	}

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

	result, err := h.nodes.GetUserNodesAcrossChains(c.Request.Context(), models.UserNodesQuery{
		UserID: userID,
		Page:   models.PageRequest{Page: page, Limit: limit},
		Filter: models.FilterMode(c.Query("filter")),
		Sort:   c.Query("sort"),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": result})
}

// GetTopNodes lists the highest earning nodes across every chain
func (h *NodeHandler) GetTopNodes(c *gin.Context) {
	n, err := intQuery(c, "n", 0)
	if err != nil {
		respondBadRequest(c, "invalid n")
		return
	}
	nodes, err := h.nodes.GetTopNNodes(c.Request.Context(), n)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": nodes})
}

// FilterNodes lists every node of a user with its member count
func (h *NodeHandler) FilterNodes(c *gin.Context) {
	userID, ok := h.authorizeUser(c)
	if !ok {
		return
	}
	var req filterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	rows, err := h.nodes.FilterNodes(c.Request.Context(), userID, req.Sort)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": rows})
}

// authorizeUser returns the :userId path parameter when the principal is
// that user or an admin
func (h *NodeHandler) authorizeUser(c *gin.Context) (string, bool) {
	userID := c.Param("userId")
	if userID != middleware.CurrentUserID(c) && !c.GetBool(middleware.ContextIsAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "access denied"})
		return "", false
	}
	return userID, true
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
