package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ExportDailyManifest handles POST /api/v1/admin/exports/daily?date=YYYY-MM-DD
// The date defaults to today.
func ExportDailyManifest(c *gin.Context) {
	e := GetEngine()

	day := c.Query("date")
	if day == "" {
		day = e.Orders.Today()
	}

	export, err := e.Manifests.ExportDaily(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    export,
	})
}
