package covers

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/seiribooks/seiri/pkg/classifier"
	"github.com/seiribooks/seiri/pkg/errcodes"
)

type handler struct {
	coverManager *Manager
}

func (h *handler) upload(c echo.Context) error {
	// Bind params.
	params := UploadCoverPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	fileHeader, ok := params.FormFiles["cover"]
	if !ok {
		return errcodes.ValidationRequired("cover")
	}

	series := classifier.SanitizeSeriesName(params.Series)
	if series == "" {
		return errcodes.ValidationRequired("series")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return errors.WithStack(err)
	}

	coverPath, err := h.coverManager.SaveUploaded(series, params.Volume, data)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		CoverPath string `json:"cover_path"`
	}{coverPath}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieve(c echo.Context) error {
	unescaped, err := url.PathUnescape(c.Param("series"))
	if err != nil {
		return errcodes.NotFound("Cover")
	}
	// Cached series names are already sanitized, so anything a sanitize pass
	// would alter cannot name a cached cover.
	series := classifier.SanitizeSeriesName(unescaped)
	if series == "" || series != unescaped {
		return errcodes.NotFound("Cover")
	}
	volume, err := strconv.Atoi(c.Param("volume"))
	if err != nil {
		return errcodes.NotFound("Cover")
	}

	if !h.coverManager.HasCover(series, volume) {
		return errcodes.NotFound("Cover")
	}

	coverPath, err := h.coverManager.CoverPath(series, volume)
	if err != nil {
		return errors.WithStack(err)
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")

	return errors.WithStack(c.File(coverPath))
}
