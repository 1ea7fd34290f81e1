package config

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the user settings routes.
func RegisterRoutes(e *echo.Echo, cfg *Config) {
	configService := NewService(cfg)
	h := &handler{configService: configService}

	e.GET("/settings", h.retrieve)
	e.PATCH("/settings", h.update)
}
