package processed

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/seiribooks/seiri/pkg/binder"
	"github.com/seiribooks/seiri/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noCovers struct{}

func (noCovers) HasCover(series string, volume int) bool { return false }

func newResolveContext(t *testing.T, id int, payload string) echo.Context {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b

	req := httptest.NewRequest(echo.POST, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(id))
	return c
}

func seedNeedsReview(t *testing.T, svc *Service) *models.ProcessedFile {
	t.Helper()

	message := "Cannot determine chapter number"
	file := &models.ProcessedFile{
		Filename:     "x.cbz",
		FileHash:     "deadbeef",
		Status:       models.ProcessedFileStatusNeedsReview,
		ErrorMessage: &message,
	}
	require.NoError(t, svc.CreateProcessedFile(context.Background(), file))
	return file
}

func TestResolve_OmittedChapterRejected(t *testing.T) {
	svc := NewService(newTestDB(t))
	h := &handler{processedFileService: svc, coverChecker: noCovers{}}
	file := seedNeedsReview(t, svc)

	c := newResolveContext(t, file.ID, `{"series":"Naruto","volume":1}`)
	err := h.resolve(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"chapter" is required`)

	// The row is untouched.
	updated, err := svc.RetrieveProcessedFile(context.Background(), RetrieveProcessedFileOptions{ID: &file.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ProcessedFileStatusNeedsReview, updated.Status)
	assert.Nil(t, updated.Chapter)
}

func TestResolve_ChapterZeroAccepted(t *testing.T) {
	svc := NewService(newTestDB(t))
	h := &handler{processedFileService: svc, coverChecker: noCovers{}}
	file := seedNeedsReview(t, svc)

	c := newResolveContext(t, file.ID, `{"series":"Naruto","volume":1,"chapter":0}`)
	require.NoError(t, h.resolve(c))

	updated, err := svc.RetrieveProcessedFile(context.Background(), RetrieveProcessedFileOptions{ID: &file.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ProcessedFileStatusCompleted, updated.Status)
	require.NotNil(t, updated.Chapter)
	assert.Equal(t, float64(0), *updated.Chapter)
	require.NotNil(t, updated.Series)
	assert.Equal(t, "Naruto", *updated.Series)
	assert.Nil(t, updated.ErrorMessage)
}

func TestResolve_CompletedFileConflicts(t *testing.T) {
	svc := NewService(newTestDB(t))
	h := &handler{processedFileService: svc, coverChecker: noCovers{}}

	file := &models.ProcessedFile{
		Filename: "done.cbz",
		FileHash: "cafebabe",
		Status:   models.ProcessedFileStatusCompleted,
	}
	require.NoError(t, svc.CreateProcessedFile(context.Background(), file))

	c := newResolveContext(t, file.ID, `{"series":"Naruto","chapter":1}`)
	err := h.resolve(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not waiting for review")
}
