package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/seiribooks/seiri/pkg/binder"
	"github.com/seiribooks/seiri/pkg/config"
	"github.com/seiribooks/seiri/pkg/covers"
	"github.com/seiribooks/seiri/pkg/errcodes"
	"github.com/seiribooks/seiri/pkg/processed"
	"github.com/uptrace/bun"
)

// New builds the review HTTP server. The cover manager is shared with the
// pipeline so both sides agree on the cache layout.
func New(cfg *config.Config, db *bun.DB, coverManager *covers.Manager) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	processed.RegisterRoutes(e, db, coverManager)
	covers.RegisterRoutes(e, coverManager)
	config.RegisterRoutes(e, cfg)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
