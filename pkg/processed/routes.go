package processed

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers all of the routes for the processed file ledger.
func RegisterRoutes(e *echo.Echo, db *bun.DB, coverChecker CoverChecker) {
	processedFileService := NewService(db)

	h := &handler{
		processedFileService: processedFileService,
		coverChecker:         coverChecker,
	}

	e.GET("/files", h.list)
	e.GET("/files/:id", h.retrieve)
	e.POST("/files/:id/resolve", h.resolve)
	e.GET("/stats", h.stats)
}
