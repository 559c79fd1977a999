package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/services/chain"
	"github.com/treechain/backend/internal/services/nodes"
	"github.com/treechain/backend/internal/store"
)

// statusFor maps service and store errors to HTTP statuses. The empty
// registry and unknown configured chains are server-side data problems.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nodes.ErrInvalidQuery),
		errors.Is(err, nodes.ErrInvalidSort),
		errors.Is(err, chain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, chain.ErrNotJoinable),
		errors.Is(err, chain.ErrTreeFull):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Server-side failures are logged
// and their detail withheld from the client.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"status": "error", "message": err.Error()}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
		body["message"] = http.StatusText(status)
	}
	if store.Retryable(err) || status == http.StatusGatewayTimeout {
		body["retryable"] = true
	}
	c.JSON(status, body)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": message})
}
