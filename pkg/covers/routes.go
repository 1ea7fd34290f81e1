package covers

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all of the routes for cover management.
func RegisterRoutes(e *echo.Echo, coverManager *Manager) {
	h := &handler{
		coverManager: coverManager,
	}

	e.POST("/covers", h.upload)
	e.GET("/covers/:series/:volume", h.retrieve)
}
