package processed

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/seiribooks/seiri/pkg/classifier"
	"github.com/seiribooks/seiri/pkg/errcodes"
	"github.com/seiribooks/seiri/pkg/models"
)

// CoverChecker reports whether a cached cover exists for a volume.
type CoverChecker interface {
	HasCover(series string, volume int) bool
}

type handler struct {
	processedFileService *Service
	coverChecker         CoverChecker
}

type fileResponse struct {
	*models.ProcessedFile
	HasCover bool `json:"has_cover"`
}

func (h *handler) respond(file *models.ProcessedFile) *fileResponse {
	resp := &fileResponse{ProcessedFile: file}
	if file.Series != nil && file.Volume != nil {
		resp.HasCover = h.coverChecker.HasCover(*file.Series, *file.Volume)
	}
	return resp
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListProcessedFilesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	files, total, err := h.processedFileService.ListProcessedFilesWithTotal(ctx, ListProcessedFilesOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		Statuses: params.Status,
		Series:   params.Series,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Files []*models.ProcessedFile `json:"files"`
		Total int                     `json:"total"`
	}{files, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Processed file")
	}

	file, err := h.processedFileService.RetrieveProcessedFile(ctx, RetrieveProcessedFileOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, h.respond(file)))
}

func (h *handler) resolve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Processed file")
	}

	// Bind params.
	params := ResolveProcessedFilePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	file, err := h.processedFileService.RetrieveProcessedFile(ctx, RetrieveProcessedFileOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if file.Status != models.ProcessedFileStatusNeedsReview {
		return errcodes.Conflict("This file is not waiting for review.")
	}

	series := classifier.CleanSeriesName(params.Series)
	if series == "" {
		return errcodes.ValidationRequired("series")
	}

	file.Series = &series
	file.Volume = params.Volume
	file.Chapter = params.Chapter
	file.Status = models.ProcessedFileStatusCompleted
	file.ErrorMessage = nil

	err = h.processedFileService.UpdateProcessedFile(ctx, file, UpdateProcessedFileOptions{
		Columns: []string{"series", "volume", "chapter", "status", "error_message"},
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, h.respond(file)))
}

func (h *handler) stats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.processedFileService.CountsByStatus(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	limit := 10
	recent, err := h.processedFileService.ListProcessedFiles(ctx, ListProcessedFilesOptions{
		Limit: &limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Counts map[string]int          `json:"counts"`
		Recent []*models.ProcessedFile `json:"recent"`
	}{counts, recent}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
