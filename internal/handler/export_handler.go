package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stefanovp/faculty-api/internal/service"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
	"github.com/stefanovp/faculty-api/pkg/response"
)

// ExportHandler serves rendered roster and transcript documents.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// CourseRoster godoc
// @Summary Export a course roster
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Course ID"
// @Param year query int false "Year, defaults to the current one"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200
// @Router /courses/{id}/roster/export [get]
func (h *ExportHandler) CourseRoster(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid course id"))
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))

	result, err := h.exports.CourseRoster(c.Request.Context(), identityFromContext(c), courseID, year, service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// StudentTranscript godoc
// @Summary Export a student transcript
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200
// @Router /students/{id}/transcript/export [get]
func (h *ExportHandler) StudentTranscript(c *gin.Context) {
	studentID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student id"))
		return
	}

	result, err := h.exports.StudentTranscript(c.Request.Context(), identityFromContext(c), studentID, service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(result.Filename))
	c.Data(200, result.ContentType, result.Content)
}
