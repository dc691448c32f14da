package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
)

type readingRequest struct {
	UserID      string  `json:"user_id"`
	Reading     float64 `json:"reading"`
	ReadingDate string  `json:"reading_date"`
}

func (s *Server) ValidateReading(c *gin.Context) {
	req, ok := bindReadingRequest(c)
	if !ok {
		return
	}

	resp, err := s.readingSvc.Validate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordReading(c *gin.Context) {
	req, ok := bindReadingRequest(c)
	if !ok {
		return
	}

	resp, err := s.readingSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// A reading that failed validation is not an HTTP error; the outcome
	// travels in the body so clients can show the explanations.
	status := http.StatusCreated
	if !resp.Validation.Valid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListReadings(c *gin.Context) {
	var query struct {
		UserID string `form:"user_id"`
		From   string `form:"from"`
		To     string `form:"to"`
		Limit  string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseDateParam(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from date"))
		return
	}
	to, err := parseDateParam(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to date"))
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.readingSvc.List(c.Request.Context(), readingdomain.ListRequest{
		UserID: strings.TrimSpace(query.UserID),
		From:   from,
		To:     to,
		Limit:  limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func bindReadingRequest(c *gin.Context) (readingdomain.ValidateRequest, bool) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return readingdomain.ValidateRequest{}, false
	}

	readingDate, err := parseDateParam(req.ReadingDate)
	if err != nil || readingDate.IsZero() {
		AbortWithError(c, newValidationError("reading_date", "invalid_reading_date", "invalid reading date"))
		return readingdomain.ValidateRequest{}, false
	}

	return readingdomain.ValidateRequest{
		UserID:      strings.TrimSpace(req.UserID),
		Reading:     req.Reading,
		ReadingDate: readingDate,
	}, true
}
