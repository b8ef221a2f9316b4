package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/middleware"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/gradia-app/gradia-backend/internal/response"
	"github.com/gradia-app/gradia-backend/internal/service"
)

// ResultHandler serves graded submissions to learners and teachers.
type ResultHandler struct {
	submissionService *service.SubmissionService
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(submissionService *service.SubmissionService) *ResultHandler {
	return &ResultHandler{submissionService: submissionService}
}

// GetSubmission godoc
// GET /api/v1/learner/tests/:test_id/submission
// Returns the learner's own submission for the test. The graded flag
// tells the client whether scores are final; clients poll until it flips.
func (h *ResultHandler) GetSubmission(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	submission, err := h.submissionService.Result(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		} else {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": submission})
}

// ListSubmissions godoc
// GET /api/v1/teacher/tests/:test_id/submissions
// Lists submissions for a test, newest first, paginated.
func (h *ResultHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}

	submissions, total, err := h.submissionService.ListByTest(c.Request.Context(), testID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": submissions}, pagination)
}
