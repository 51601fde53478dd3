package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/service"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
	"github.com/stefanovp/faculty-api/pkg/response"
	"github.com/stefanovp/faculty-api/pkg/storage"
)

// EnrollmentHandler exposes the enrollment workflow endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	files       *storage.LocalStorage
	signer      *storage.SignedURLSigner
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, files *storage.LocalStorage, signer *storage.SignedURLSigner) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, files: files, signer: signer}
}

type updateEnrollmentPayload struct {
	service.UpdateEnrollmentRequest
	Version int64 `json:"version"`
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param courseId query int false "Filter by course"
// @Param studentId query int false "Filter by student"
// @Param course query string false "Filter by course title"
// @Param studentCode query string false "Filter by student code"
// @Param year query int false "Filter by year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	if courseID, err := strconv.ParseInt(c.Query("courseId"), 10, 64); err == nil {
		filter.CourseID = courseID
	}
	if studentID, err := strconv.ParseInt(c.Query("studentId"), 10, 64); err == nil {
		filter.StudentID = studentID
	}
	filter.CourseTitle = c.Query("course")
	filter.StudentCode = c.Query("studentCode")
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.Year = year
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), identityFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id"))
		return
	}
	detail, err := h.enrollments.Get(c.Request.Context(), identityFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Enroll a student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.enrollments.Create(c.Request.Context(), identityFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update enrollment fields
// @Description Applies the submitted fields the caller's role may write and
// @Description commits against the version token fetched with the record.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param payload body updateEnrollmentPayload true "Partial update with version token"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id"))
		return
	}
	var payload updateEnrollmentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.enrollments.Update(c.Request.Context(), identityFromContext(c), id, payload.UpdateEnrollmentRequest, payload.Version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// SubmitCoursework godoc
// @Summary Submit coursework for an enrollment
// @Description Multipart endpoint for students: uploads a seminar file and
// @Description optionally updates the project URL on their own enrollment.
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param version formData int true "Version token fetched with the record"
// @Param projectUrl formData string false "Project URL"
// @Param file formData file false "Seminar file"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/coursework [put]
func (h *EnrollmentHandler) SubmitCoursework(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id"))
		return
	}

	version, err := strconv.ParseInt(c.PostForm("version"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{"version": "fetched version token is required"}))
		return
	}

	var req service.UpdateEnrollmentRequest
	if projectURL := c.PostForm("projectUrl"); projectURL != "" {
		req.ProjectURL = &projectURL
	}

	if fileHeader, err := c.FormFile("file"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file"))
			return
		}
		defer file.Close()
		req.Attachment = &service.AttachmentUpload{
			Filename: fileHeader.Filename,
			Size:     fileHeader.Size,
			Content:  file,
		}
	}

	detail, err := h.enrollments.Update(c.Request.Context(), identityFromContext(c), id, req, version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 204
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id"))
		return
	}
	if err := h.enrollments.Delete(c.Request.Context(), identityFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary Course roster
// @Tags Enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Param year query int false "Year, defaults to the current one"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid course id"))
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))

	enrollments, err := h.enrollments.CourseRoster(c.Request.Context(), identityFromContext(c), courseID, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// AttachmentURL godoc
// @Summary Signed download link for the coursework attachment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/attachment [get]
func (h *EnrollmentHandler) AttachmentURL(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id"))
		return
	}
	ref, err := h.enrollments.AttachmentRef(c.Request.Context(), identityFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	token, expiresAt, err := h.signer.Generate(strconv.FormatInt(id, 10), ref)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/files/download?token=" + token,
		"expires_at": expiresAt.Format(time.RFC3339),
	}, nil)
}

// DownloadAttachment godoc
// @Summary Download a coursework attachment via signed token
// @Tags Enrollments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200
// @Router /files/download [get]
func (h *EnrollmentHandler) DownloadAttachment(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	_, relPath, _, err := h.signer.Parse(token)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token"))
		return
	}
	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "attachment not found"))
		return
	}
	defer file.Close()

	c.FileAttachment(h.files.Path(relPath), downloadName(relPath))
}

// downloadName strips the storage prefix and the uuid from the stored
// reference so the browser sees the original file name.
func downloadName(ref string) string {
	base := ref
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.IndexByte(base, '_'); idx >= 0 && idx+1 < len(base) {
		base = base[idx+1:]
	}
	return base
}
