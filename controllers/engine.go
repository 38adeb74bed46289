package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
	"github.com/rs/zerolog/log"
)

// Engine bundles the order services the handlers call
type Engine struct {
	Orders    *services.OrderService
	Machine   *services.OrderStateMachine
	Catalog   *services.CatalogService
	Manifests *services.ManifestService
}

var engine *Engine

// SetEngine installs the services used by every handler
func SetEngine(e *Engine) {
	engine = e
}

// GetEngine returns the installed services
func GetEngine() *Engine {
	return engine
}

// statusFor maps a service error kind to an HTTP status
func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindPolicy:
		return http.StatusUnprocessableEntity
	case services.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope for err. Persistence failures are
// logged with their cause and answered with the generic message only.
func respondError(c *gin.Context, err error) {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = &services.ServiceError{
			Kind:    services.KindPersistence,
			Code:    "PERSISTENCE_ERROR",
			Message: services.GenericFailureMessage,
			Err:     err,
		}
	}

	status := statusFor(svcErr.Kind)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	_ = c.Error(err)

	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    svcErr.Code,
			"message": svcErr.Message,
		},
	})
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// orderIDParam parses the :id path parameter
func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ORDER_ID",
				"message": "Order ID must be a positive integer",
			},
		})
		return 0, false
	}
	return uint(id), true
}
